// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

// Command llcachesim drives a Cache over a scripted trace of accesses and
// prints the resulting stats report.
package main

import (
	"bufio"
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/erigontech/llcache/accessengine"
	"github.com/erigontech/llcache/cache"
	"github.com/erigontech/llcache/internal/config"
	"github.com/erigontech/llcache/request"
	"github.com/erigontech/llcache/stats"
)

// traceLine is one scripted access, one JSON object per line of the trace
// file (a simple JSON-lines format, decoded with jsoniter).
type traceLine struct {
	Addr  uint64 `json:"addr"`
	Op    string `json:"op"`
	Src   int    `json:"src"`
	Cycle uint64 `json:"cycle"`
}

func opFromString(s string) (request.Op, error) {
	switch s {
	case "GETS":
		return request.GETS, nil
	case "GETX":
		return request.GETX, nil
	case "PUTS":
		return request.PUTS, nil
	case "PUTX":
		return request.PUTX, nil
	default:
		return 0, fmt.Errorf("unknown op %q", s)
	}
}

func main() {
	var (
		cfgPath   string
		tracePath string
		dotPath   string
		trace     bool
	)

	root := &cobra.Command{
		Use:   "llcachesim",
		Short: "Replay a memory-access trace through a BDI/dedup/approximate last-level cache simulator",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			log := logger.Sugar()

			var cfg *config.Config
			if cfgPath != "" {
				cfg, err = config.Load(cfgPath)
				if err != nil {
					return err
				}
			} else {
				cfg = config.Default()
			}
			cfg.Trace = trace

			c, err := cache.New(cfg, log, nil)
			if err != nil {
				return fmt.Errorf("building cache: %w", err)
			}

			f, err := os.Open(tracePath)
			if err != nil {
				return fmt.Errorf("opening trace: %w", err)
			}
			defer f.Close()

			var lastResult accessengine.Result
			scanner := bufio.NewScanner(f)
			lineNo := uint64(0)
			for scanner.Scan() {
				lineNo++
				line := scanner.Bytes()
				if len(line) == 0 {
					continue
				}
				var tl traceLine
				if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(line, &tl); err != nil {
					return fmt.Errorf("trace line %d: %w", lineNo, err)
				}
				op, err := opFromString(tl.Op)
				if err != nil {
					return fmt.Errorf("trace line %d: %w", lineNo, err)
				}
				cycle := tl.Cycle
				if cycle == 0 {
					cycle = lineNo
				}
				req := &request.Request{
					LineAddr: tl.Addr >> c.Geo.LineBits(),
					Op:       op,
					SrcID:    tl.Src,
					Cycle:    cycle,
				}
				lastResult = c.Access(req)
				log.Debugw("access", "line", lineNo, "case", lastResult.Case)
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("reading trace: %w", err)
			}

			if dotPath != "" && lastResult.Graph != nil {
				if err := os.WriteFile(dotPath, []byte(lastResult.Graph.DOT()), 0o644); err != nil {
					return fmt.Errorf("writing dot file: %w", err)
				}
			}

			stats.WriteReport(os.Stdout, c.Snapshot())
			return nil
		},
	}
	root.Flags().StringVar(&cfgPath, "config", "", "path to a TOML cache config (defaults built in if omitted)")
	root.Flags().StringVar(&tracePath, "trace", "", "path to a JSON-lines trace file")
	root.Flags().StringVar(&dotPath, "dot", "", "optional path to write the final access's timing graph as DOT")
	root.Flags().BoolVar(&trace, "verbose-memory", false, "trace every memory-sampler read")
	root.MarkFlagRequired("trace") //nolint:errcheck

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
