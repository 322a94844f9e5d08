// Command fsshell is an interactive REPL exercising the filesys API end to
// end: create, open, read, write, mkdir, chdir, readdir, rm, stat, and the
// cache-observability operations, useful both for manual testing and as a
// worked example of the package's call conventions.
//
// Per-session log lines are tagged with a github.com/google/uuid session ID
// the way a multi-volume daemon would tag per-volume log lines.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/eduos/filesys"
	"github.com/eduos/filesys/internal/blockdev"
	"github.com/eduos/filesys/internal/clock"
	"github.com/eduos/filesys/internal/config"
	"github.com/eduos/filesys/internal/logger"
)

var (
	cfgFile      string
	bindErr      error
	unmarshalErr error
	shellConfig  config.Config
	v            = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "fsshell [flags] image-path",
	Short: "Interactively exercise a filesys disk image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		if unmarshalErr != nil {
			return unmarshalErr
		}
		shellConfig.Device = args[0]
		return runShell(shellConfig)
	},
}

func initConfig() {
	shellConfig, unmarshalErr = config.Load(v, cfgFile)
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to a YAML config file.")
	bindErr = config.BindFlags(v, rootCmd.PersistentFlags())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// session bundles one REPL's mutable state: the open filesystem, the
// current-working-directory handle, and named open files, keyed by the
// name the user supplied when opening or creating them.
type session struct {
	id    string
	clock clock.Clock
	fs    *filesys.FileSystem
	cwd   *filesys.Dir
	files map[string]*filesys.File
}

func runShell(cfg config.Config) error {
	logger.SetLevel(cfg.Logging.Severity)
	logger.SetFormat(cfg.Logging.Format)
	if cfg.Logging.FilePath != "" {
		if err := logger.InitLogFile(cfg.Logging.FilePath, logger.RotateConfig{MaxSizeMB: 10, MaxBackups: 3, Compress: true}); err != nil {
			return fmt.Errorf("fsshell: init log file: %w", err)
		}
		defer logger.Close()
	}

	dev, err := blockdev.OpenFileDevice(cfg.Device, cfg.Sectors)
	if err != nil {
		return fmt.Errorf("fsshell: open device: %w", err)
	}
	defer dev.Close()

	fs, err := filesys.Init(filesys.Config{Device: dev, Format: cfg.Format})
	if err != nil {
		return fmt.Errorf("fsshell: init filesystem: %w", err)
	}
	defer fs.Done()

	root, err := fs.RootDir()
	if err != nil {
		return fmt.Errorf("fsshell: open root: %w", err)
	}

	sess := &session{
		id:    uuid.NewString(),
		clock: clock.Real(),
		fs:    fs,
		cwd:   root,
		files: make(map[string]*filesys.File),
	}
	logger.Infof("session %s: attached %s", sess.id, cfg.Device)

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Fprintf(os.Stdout, "fsshell %s> ", sess.id[:8])
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			if err := sess.dispatch(line); err != nil {
				fmt.Fprintf(os.Stdout, "error: %v\n", err)
			}
		}
		fmt.Fprintf(os.Stdout, "fsshell %s> ", sess.id[:8])
	}

	for name, f := range sess.files {
		if err := f.Close(); err != nil {
			logger.Warnf("session %s: closing %q at exit: %v", sess.id, name, err)
		}
	}
	logger.Infof("session %s: detached after %s", sess.id, sess.clock.Now().Format("15:04:05"))
	return nil
}

func (s *session) dispatch(line string) error {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "mkdir":
		return s.cmdMkdir(args)
	case "chdir", "cd":
		return s.cmdChdir(args)
	case "ls", "readdir":
		return s.cmdReaddir(args)
	case "create":
		return s.cmdCreate(args)
	case "open":
		return s.cmdOpen(args)
	case "close":
		return s.cmdClose(args)
	case "read":
		return s.cmdRead(args)
	case "write":
		return s.cmdWrite(args)
	case "seek":
		return s.cmdSeek(args)
	case "rm":
		return s.cmdRemove(args)
	case "stat":
		return s.cmdStat(args)
	case "cachestats":
		fmt.Fprintf(os.Stdout, "hit-rate=%d%% reads=%d writes=%d free-sectors=%d\n",
			s.fs.HitRate(), s.fs.FSReads(), s.fs.FSWrites(), s.fs.FreeSectors())
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (s *session) cmdMkdir(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: mkdir <path>")
	}
	return s.cwd.Mkdir(args[0])
}

func (s *session) cmdChdir(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: chdir <path>")
	}
	next, err := s.cwd.Chdir(args[0])
	if err != nil {
		return err
	}
	s.cwd.Close()
	s.cwd = next
	return nil
}

func (s *session) cmdReaddir(args []string) error {
	dir := s.cwd
	if len(args) == 1 {
		d, err := s.cwd.OpenDir(args[0])
		if err != nil {
			return err
		}
		defer d.Close()
		dir = d
	}
	dir.RewindReaddir()
	for {
		name, ok, err := dir.Readdir()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		fmt.Fprintln(os.Stdout, name)
	}
}

func (s *session) cmdCreate(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: create <handle-name> <path>")
	}
	f, err := s.cwd.Create(args[1], 0)
	if err != nil {
		return err
	}
	s.files[args[0]] = f
	return nil
}

func (s *session) cmdOpen(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: open <handle-name> <path>")
	}
	f, err := s.cwd.Open(args[1])
	if err != nil {
		return err
	}
	s.files[args[0]] = f
	return nil
}

func (s *session) cmdClose(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: close <handle-name>")
	}
	f, ok := s.files[args[0]]
	if !ok {
		return fmt.Errorf("no open handle named %q", args[0])
	}
	delete(s.files, args[0])
	return f.Close()
}

func (s *session) cmdRead(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: read <handle-name> <count>")
	}
	f, ok := s.files[args[0]]
	if !ok {
		return fmt.Errorf("no open handle named %q", args[0])
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return err
	}
	buf := make([]byte, n)
	read, err := f.Read(buf)
	fmt.Fprintf(os.Stdout, "%q\n", buf[:read])
	return err
}

func (s *session) cmdWrite(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: write <handle-name> <text...>")
	}
	f, ok := s.files[args[0]]
	if !ok {
		return fmt.Errorf("no open handle named %q", args[0])
	}
	payload := strings.Join(args[1:], " ")
	n, err := f.Write([]byte(payload))
	fmt.Fprintf(os.Stdout, "wrote %d bytes\n", n)
	return err
}

func (s *session) cmdSeek(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: seek <handle-name> <pos>")
	}
	f, ok := s.files[args[0]]
	if !ok {
		return fmt.Errorf("no open handle named %q", args[0])
	}
	pos, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		return err
	}
	f.Seek(uint32(pos))
	return nil
}

func (s *session) cmdRemove(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: rm <path>")
	}
	return s.cwd.Remove(args[0])
}

func (s *session) cmdStat(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: stat <handle-name>")
	}
	f, ok := s.files[args[0]]
	if !ok {
		return fmt.Errorf("no open handle named %q", args[0])
	}
	length, err := f.Length()
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "inumber=%d length=%d pos=%d\n", f.Inumber(), length, f.Tell())
	return nil
}
