package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/changxiaoxie/ufs"
	"github.com/changxiaoxie/ufs/block"
	"github.com/changxiaoxie/ufs/report"
)

var log = logrus.New()

func main() {
	app := &cli.App{
		Name:  "ufsshell",
		Usage: "inspect and manipulate ufs block-device file system images",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to a YAML config file"},
			&cli.StringFlag{Name: "image", Usage: "path to the disk image (overrides config)"},
		},
		Before: setupLogging,
		Commands: []*cli.Command{
			mkfsCommand,
			lsCommand,
			mkdirCommand,
			statCommand,
			catCommand,
			putCommand,
			rmCommand,
			shellCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("ufsshell failed")
	}
}

func setupLogging(c *cli.Context) error {
	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return err
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return nil
}

// resolveImagePath picks the image to operate on: the --image flag wins,
// otherwise the config file's image_path, otherwise the default.
func resolveImagePath(c *cli.Context) (string, error) {
	if p := c.String("image"); p != "" {
		return p, nil
	}
	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return "", err
	}
	return cfg.ImagePath, nil
}

// openFS opens (and, if absent, creates) the image at path and mounts it.
func openFS(path string, size uint32) (*ufs.FileSystem, *os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	blockCount := size
	if info.Size() >= int64(block.Size) {
		blockCount = uint32(info.Size() / block.Size)
	} else if err := f.Truncate(int64(size) * block.Size); err != nil {
		f.Close()
		return nil, nil, err
	}

	dev := block.NewStreamDevice(f, blockCount)
	fs, err := ufs.Init(dev)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return fs, f, nil
}

var mkfsCommand = &cli.Command{
	Name:      "mkfs",
	Usage:     "format a fresh image",
	ArgsUsage: "SIZE_IN_BLOCKS",
	Action: func(c *cli.Context) error {
		path, err := resolveImagePath(c)
		if err != nil {
			return err
		}
		cfg, err := loadConfig(c.String("config"))
		if err != nil {
			return err
		}
		size := cfg.DefaultSize
		if c.Args().Len() > 0 {
			n, err := strconv.ParseUint(c.Args().First(), 10, 32)
			if err != nil {
				return err
			}
			size = uint32(n)
		}

		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := f.Truncate(int64(size) * block.Size); err != nil {
			return err
		}

		dev := block.NewStreamDevice(f, size)
		if _, err := ufs.Init(dev); err != nil {
			return err
		}
		log.WithFields(logrus.Fields{"path": path, "blocks": size}).Info("formatted image")
		return nil
	},
}

var lsCommand = &cli.Command{
	Name:  "ls",
	Usage: "list the root directory and print a CSV usage report",
	Action: func(c *cli.Context) error {
		path, err := resolveImagePath(c)
		if err != nil {
			return err
		}
		fs, f, err := openFS(path, 2048)
		if err != nil {
			return err
		}
		defer f.Close()
		return report.WriteUsageCSV(fs, os.Stdout)
	},
}

var mkdirCommand = &cli.Command{
	Name:      "mkdir",
	Usage:     "create a directory in the root",
	ArgsUsage: "NAME",
	Action: func(c *cli.Context) error {
		if c.Args().Len() != 1 {
			return fmt.Errorf("mkdir: expected exactly one NAME argument")
		}
		path, err := resolveImagePath(c)
		if err != nil {
			return err
		}
		fs, f, err := openFS(path, 2048)
		if err != nil {
			return err
		}
		defer f.Close()
		return fs.Mkdir(c.Args().First())
	},
}

var statCommand = &cli.Command{
	Name:      "stat",
	Usage:     "print detailed information about an entry",
	ArgsUsage: "NAME",
	Action: func(c *cli.Context) error {
		if c.Args().Len() != 1 {
			return fmt.Errorf("stat: expected exactly one NAME argument")
		}
		path, err := resolveImagePath(c)
		if err != nil {
			return err
		}
		fs, f, err := openFS(path, 2048)
		if err != nil {
			return err
		}
		defer f.Close()

		name := c.Args().First()
		st, err := fs.Stat(name)
		if err != nil {
			return err
		}
		fmt.Print(report.DumpStat(name, st))
		return nil
	},
}

var catCommand = &cli.Command{
	Name:      "cat",
	Usage:     "print a file's contents to stdout",
	ArgsUsage: "NAME",
	Action: func(c *cli.Context) error {
		if c.Args().Len() != 1 {
			return fmt.Errorf("cat: expected exactly one NAME argument")
		}
		path, err := resolveImagePath(c)
		if err != nil {
			return err
		}
		fs, f, err := openFS(path, 2048)
		if err != nil {
			return err
		}
		defer f.Close()

		fd, err := fs.Open(c.Args().First(), ufs.RDONLY)
		if err != nil {
			return err
		}
		defer fs.Close(fd)

		buf := make([]byte, block.Size)
		for {
			n, err := fs.Read(fd, buf)
			if n > 0 {
				os.Stdout.Write(buf[:n])
			}
			if err != nil || n == 0 {
				return err
			}
		}
	},
}

var putCommand = &cli.Command{
	Name:      "put",
	Usage:     "write stdin into a file, creating it if necessary",
	ArgsUsage: "NAME",
	Action: func(c *cli.Context) error {
		if c.Args().Len() != 1 {
			return fmt.Errorf("put: expected exactly one NAME argument")
		}
		path, err := resolveImagePath(c)
		if err != nil {
			return err
		}
		fs, f, err := openFS(path, 2048)
		if err != nil {
			return err
		}
		defer f.Close()

		fd, err := fs.Open(c.Args().First(), ufs.WRONLY)
		if err != nil {
			return err
		}
		defer fs.Close(fd)

		buf := make([]byte, block.Size)
		reader := bufio.NewReader(os.Stdin)
		for {
			n, rerr := reader.Read(buf)
			if n > 0 {
				if _, werr := fs.Write(fd, buf[:n]); werr != nil {
					return werr
				}
			}
			if rerr != nil {
				if rerr == io.EOF {
					return nil
				}
				return rerr
			}
		}
	},
}

var rmCommand = &cli.Command{
	Name:      "rm",
	Usage:     "unlink a file",
	ArgsUsage: "NAME",
	Action: func(c *cli.Context) error {
		if c.Args().Len() != 1 {
			return fmt.Errorf("rm: expected exactly one NAME argument")
		}
		path, err := resolveImagePath(c)
		if err != nil {
			return err
		}
		fs, f, err := openFS(path, 2048)
		if err != nil {
			return err
		}
		defer f.Close()
		return fs.Unlink(c.Args().First())
	},
}

// shellCommand drops into an interactive REPL so cd actually persists
// across commands within one mount, unlike the rest of ufsshell's
// one-shot-per-process subcommands.
var shellCommand = &cli.Command{
	Name:  "shell",
	Usage: "start an interactive session against an image",
	Action: func(c *cli.Context) error {
		path, err := resolveImagePath(c)
		if err != nil {
			return err
		}
		fs, f, err := openFS(path, 2048)
		if err != nil {
			return err
		}
		defer f.Close()

		scanner := bufio.NewScanner(os.Stdin)
		fmt.Print("ufs> ")
		for scanner.Scan() {
			runShellLine(fs, scanner.Text())
			fmt.Print("ufs> ")
		}
		return scanner.Err()
	},
}

func runShellLine(fs *ufs.FileSystem, line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}

	var err error
	switch fields[0] {
	case "ls":
		err = report.WriteUsageCSV(fs, os.Stdout)
	case "cd":
		if len(fields) != 2 {
			err = fmt.Errorf("usage: cd NAME")
		} else {
			err = fs.Cd(fields[1])
		}
	case "mkdir":
		if len(fields) != 2 {
			err = fmt.Errorf("usage: mkdir NAME")
		} else {
			err = fs.Mkdir(fields[1])
		}
	case "rmdir":
		if len(fields) != 2 {
			err = fmt.Errorf("usage: rmdir NAME")
		} else {
			err = fs.Rmdir(fields[1])
		}
	case "stat":
		if len(fields) != 2 {
			err = fmt.Errorf("usage: stat NAME")
		} else {
			var st ufs.FileStat
			st, err = fs.Stat(fields[1])
			if err == nil {
				fmt.Print(report.DumpStat(fields[1], st))
			}
		}
	case "exit", "quit":
		os.Exit(0)
	default:
		err = fmt.Errorf("unknown command %q", fields[0])
	}

	if err != nil {
		log.WithError(err).Error("command failed")
	}
}
