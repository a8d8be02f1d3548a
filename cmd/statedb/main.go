package main

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/eigerco/statedb/internal/config"
	"github.com/eigerco/statedb/internal/storage"
	"github.com/eigerco/statedb/pkg/db"
	"github.com/eigerco/statedb/pkg/db/txn"
	"github.com/eigerco/statedb/pkg/log"
)

const usage = `usage: statedb [-config file] [-log-level level] <command> [flags] [args]

commands:
  get     <key>          print the value stored under key
  put     <key> <value>  store value under key
  delete  <key>          remove key
  exists  <key>          report whether key is present
  scan                   list entries, see "statedb scan -h"

keys and values are raw text, or hex when prefixed with 0x
`

var errUsage = errors.New("invalid usage")

// main opens the configured store and runs one command against it.
// go run ./cmd/statedb -config statedb.toml put 0x01 hello
func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "statedb: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("statedb", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a TOML or YAML config file")
	logLevel := fs.String("log-level", "", "override the configured log level")
	fs.Usage = func() { fmt.Fprint(fs.Output(), usage) }
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errUsage
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := initLogging(cfg.Log); err != nil {
		return err
	}

	source, err := storage.Open(cfg.Storage)
	if err != nil {
		return err
	}
	defer func() {
		if err := source.Close(); err != nil {
			log.CLI.Error().Err(err).Msg("closing storage")
		}
	}()

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	log.CLI.Debug().Str("command", cmd).Stringer("storage", source).Msg("running command")
	switch cmd {
	case "get":
		return runGet(source, rest, out)
	case "put":
		return runPut(source, rest, out)
	case "delete":
		return runDelete(source, rest, out)
	case "exists":
		return runExists(source, rest, out)
	case "scan":
		return runScan(source, rest, out)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func initLogging(cfg config.LogConfig) error {
	level, err := log.ParseLogLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	loggerType, err := log.ParseLoggerType(cfg.Format)
	if err != nil {
		return err
	}
	log.Init(log.Options{LogLevel: level, Type: loggerType})
	return nil
}

// keyFlags parses the flags shared by the single-key commands.
func keyFlags(name string, args []string, nargs int) (db.Column, [][]byte, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	column := fs.Uint("column", 1, "column to operate on")
	if err := fs.Parse(args); err != nil {
		return 0, nil, err
	}
	col, err := toColumn(*column)
	if err != nil {
		return 0, nil, err
	}
	if fs.NArg() != nargs {
		return 0, nil, fmt.Errorf("%w: %s takes %d argument(s)", errUsage, name, nargs)
	}
	decoded := make([][]byte, 0, nargs)
	for _, arg := range fs.Args() {
		b, err := parseBytes(arg)
		if err != nil {
			return 0, nil, err
		}
		decoded = append(decoded, b)
	}
	return col, decoded, nil
}

// toColumn rejects identifiers wider than 32 bits instead of truncating them.
func toColumn(v uint) (db.Column, error) {
	if v > math.MaxUint32 {
		return 0, fmt.Errorf("%w: column %d does not fit in 32 bits", errUsage, v)
	}
	return db.Column(v), nil
}

func runGet(source db.KeyValueStore, args []string, out io.Writer) error {
	column, kv, err := keyFlags("get", args, 1)
	if err != nil {
		return err
	}
	value, ok, err := source.Get(kv[0], column)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("key %s not found", formatBytes(kv[0]))
	}
	_, err = fmt.Fprintln(out, formatBytes(value))
	return err
}

// previous is the value a write replaced, if any.
type previous struct {
	value   []byte
	existed bool
}

func (p previous) report(out io.Writer, verb string) error {
	if !p.existed {
		_, err := fmt.Fprintf(out, "%s, no previous value\n", verb)
		return err
	}
	_, err := fmt.Fprintf(out, "%s, previous value %s\n", verb, formatBytes(p.value))
	return err
}

func runPut(source db.TransactableStorage, args []string, out io.Writer) error {
	column, kv, err := keyFlags("put", args, 2)
	if err != nil {
		return err
	}
	prev, err := txn.Run(source, func(v *txn.View) (previous, error) {
		value, existed, err := v.Put(kv[0], column, kv[1])
		return previous{value: value, existed: existed}, err
	})
	if err != nil {
		return err
	}
	return prev.report(out, "stored")
}

func runDelete(source db.TransactableStorage, args []string, out io.Writer) error {
	column, kv, err := keyFlags("delete", args, 1)
	if err != nil {
		return err
	}
	prev, err := txn.Run(source, func(v *txn.View) (previous, error) {
		value, existed, err := v.Delete(kv[0], column)
		return previous{value: value, existed: existed}, err
	})
	if err != nil {
		return err
	}
	return prev.report(out, "deleted")
}

func runExists(source db.KeyValueStore, args []string, out io.Writer) error {
	column, kv, err := keyFlags("exists", args, 1)
	if err != nil {
		return err
	}
	ok, err := source.Exists(kv[0], column)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, ok)
	return err
}

func runScan(source db.KeyValueStore, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	column := fs.Uint("column", 1, "column to scan")
	prefix := fs.String("prefix", "", "only keys with this prefix")
	start := fs.String("start", "", "first key to visit, inclusive")
	reverse := fs.Bool("reverse", false, "visit keys in descending order")
	limit := fs.Int("limit", 0, "stop after this many entries, 0 for no limit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 0 {
		return fmt.Errorf("%w: scan takes no arguments", errUsage)
	}
	col, err := toColumn(*column)
	if err != nil {
		return err
	}

	var opts db.IterOptions
	if opts.Prefix, err = parseOptionalBytes(*prefix); err != nil {
		return err
	}
	if opts.Start, err = parseOptionalBytes(*start); err != nil {
		return err
	}
	if *reverse {
		opts.Direction = db.Reverse
	}

	n := 0
	for kv, err := range db.Entries(source.Iterate(col, opts)) {
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(out, "%s\t%s\n", formatBytes(kv.Key), formatBytes(kv.Value)); err != nil {
			return err
		}
		n++
		if *limit > 0 && n == *limit {
			break
		}
	}
	log.CLI.Debug().Int("entries", n).Msg("scan finished")
	return nil
}

// parseBytes reads 0x-prefixed hex, or takes the argument as raw text.
func parseBytes(s string) ([]byte, error) {
	if rest, ok := strings.CutPrefix(s, "0x"); ok {
		b, err := hex.DecodeString(rest)
		if err != nil {
			return nil, fmt.Errorf("decoding %q: %w", s, err)
		}
		return b, nil
	}
	return []byte(s), nil
}

func parseOptionalBytes(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return parseBytes(s)
}

// formatBytes prints printable text as is and everything else as 0x hex.
func formatBytes(b []byte) string {
	if len(b) > 0 && utf8.Valid(b) && !strings.HasPrefix(string(b), "0x") {
		printable := true
		for _, r := range string(b) {
			if !unicode.IsPrint(r) {
				printable = false
				break
			}
		}
		if printable {
			return string(b)
		}
	}
	return "0x" + hex.EncodeToString(b)
}
