// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/tsdasari9/firewall/internal/config"
	"github.com/tsdasari9/firewall/internal/errors"
)

func runConfig(configPath, action string, args []string, stdout io.Writer) error {
	switch action {
	case "init":
		data := config.GenerateHCL(config.Example())
		if len(args) == 0 || args[0] == "-" {
			_, err := stdout.Write(data)
			return err
		}
		path := args[0]
		if _, err := os.Stat(path); err == nil {
			return errors.Errorf(errors.KindValidation, "%s already exists", path)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return errors.Wrapf(err, errors.KindUnavailable, "write %s", path)
		}
		fmt.Fprintf(stdout, "Wrote %s\n", path)
		return nil

	case "check":
		if configPath == "" {
			return errors.New(errors.KindValidation, "config check needs -config")
		}
		cfg, err := config.LoadFile(configPath)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s: OK (source %s, %d ACL rules)\n", configPath, cfg.Capture.Source, len(cfg.ACL))
		return nil
	}
	return errors.Errorf(errors.KindValidation, "unknown config action %q", action)
}
