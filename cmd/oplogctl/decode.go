package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-metrics"
	"github.com/urfave/cli/v2"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/ankur-anand/mongoplog/internal/etc"
	"github.com/ankur-anand/mongoplog/oplog"
)

var (
	packageKey = []string{"mongoplog", "oplogctl"}

	mKeyDecodeTotal       = append(packageKey, "decode", "total")
	mKeyDecodeErrorsTotal = append(packageKey, "decode", "errors", "total")
)

// Scanner limit for one extended JSON record; oplog entries are capped
// at 16MB of BSON so give the textual form headroom.
const maxRecordBytes = 32 * 1024 * 1024

func decodeCommand() *cli.Command {
	return &cli.Command{
		Name:  "decode",
		Usage: "Decode newline-delimited extended JSON oplog records",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "file",
				Aliases: []string{"i"},
				Value:   "-",
				Usage:   "Input file, '-' for stdin",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: table, json",
			},
			&cli.BoolFlag{
				Name:  "strict",
				Usage: "Stop at the first malformed record",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "TOML config file",
			},
		},
		Action: decodeAction,
	}
}

func decodeAction(c *cli.Context) error {
	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return err
	}
	if c.IsSet("format") {
		cfg.Format = c.String("format")
	}
	if c.IsSet("strict") {
		cfg.Strict = c.Bool("strict")
	}
	if cfg.Format != formatTable && cfg.Format != formatJSON {
		return fmt.Errorf("invalid format %q: must be 'table' or 'json'", cfg.Format)
	}

	var in io.Reader = os.Stdin
	if name := c.String("file"); name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		in = f
	}

	inm := metrics.NewInmemSink(time.Minute, time.Hour)
	summary, err := runDecode(in, c.App.Writer, inm, cfg)
	if err != nil {
		return err
	}

	slog.Info("[oplogctl] decode finished",
		"records", summary.records, "skipped", summary.skipped)

	fmt.Fprintf(c.App.Writer, "\ndecoded %s records, skipped %s\n",
		humanize.Comma(int64(summary.records)), humanize.Comma(int64(summary.skipped)))
	return etc.DumpCounters(inm, c.App.Writer)
}

type decodeSummary struct {
	records int
	skipped int
}

// runDecode reads one extended JSON oplog record per line, decodes it
// and writes the rendering to out. Malformed records either abort
// (strict) or are logged, counted and skipped; the decode policy lives
// here, not in the oplog package.
func runDecode(in io.Reader, out io.Writer, sink *metrics.InmemSink, cfg Config) (decodeSummary, error) {
	var summary decodeSummary

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), maxRecordBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		op, err := decodeLine(line)
		if err != nil {
			sink.IncrCounterWithLabels(mKeyDecodeErrorsTotal, 1,
				[]metrics.Label{{Name: "reason", Value: errorReason(err)}})
			if cfg.Strict {
				return summary, fmt.Errorf("record at line %d: %w", lineNo, err)
			}
			summary.skipped++
			slog.Warn("[oplogctl] skipping malformed record", "line", lineNo, "err", err)
			continue
		}

		sink.IncrCounterWithLabels(mKeyDecodeTotal, 1,
			[]metrics.Label{{Name: "kind", Value: op.Kind().String()}})
		summary.records++

		rendered, err := renderOperation(op, cfg.Format)
		if err != nil {
			return summary, fmt.Errorf("render record at line %d: %w", lineNo, err)
		}
		fmt.Fprintln(out, rendered)
	}
	if err := scanner.Err(); err != nil {
		return summary, fmt.Errorf("read input: %w", err)
	}

	return summary, nil
}

func decodeLine(line string) (oplog.Operation, error) {
	var doc bson.D
	if err := bson.UnmarshalExtJSON([]byte(line), false, &doc); err != nil {
		return nil, fmt.Errorf("parse extended JSON: %w", err)
	}
	return oplog.Decode(doc)
}

func errorReason(err error) string {
	var unknown *oplog.UnknownOperationError
	var missing *oplog.MissingFieldError
	switch {
	case errors.As(err, &unknown):
		return "unknown operation"
	case errors.As(err, &missing):
		return "missing field"
	case errors.Is(err, oplog.ErrInvalidOperation):
		return "invalid operation"
	}
	return "bad input"
}

func renderOperation(op oplog.Operation, format string) (string, error) {
	if format == formatTable {
		return op.String(), nil
	}

	out, err := bson.MarshalExtJSON(operationDocument(op), false, false)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// operationDocument flattens an operation into an ordered document for
// JSON output. ApplyOps batches nest recursively, mirroring the decode.
func operationDocument(op oplog.Operation) bson.D {
	meta := op.Meta()
	doc := bson.D{
		{Key: "kind", Value: op.Kind().String()},
		{Key: "uid", Value: meta.UID},
		{Key: "timestamp", Value: meta.Timestamp.Format(time.RFC3339Nano)},
		{Key: "pos", Value: bson.D{
			{Key: "seconds", Value: int64(meta.Pos.Seconds)},
			{Key: "ordinal", Value: int64(meta.Pos.Ordinal)},
		}},
	}

	switch op := op.(type) {
	case oplog.Noop:
		if op.Message != "" {
			doc = append(doc, bson.E{Key: "message", Value: op.Message})
		}
	case oplog.Insert:
		doc = append(doc,
			bson.E{Key: "ns", Value: op.Namespace},
			bson.E{Key: "document", Value: op.Document})
	case oplog.Update:
		doc = append(doc,
			bson.E{Key: "ns", Value: op.Namespace},
			bson.E{Key: "query", Value: op.Query},
			bson.E{Key: "update", Value: op.Update})
	case oplog.Delete:
		doc = append(doc,
			bson.E{Key: "ns", Value: op.Namespace},
			bson.E{Key: "query", Value: op.Query})
	case oplog.Command:
		doc = append(doc,
			bson.E{Key: "ns", Value: op.Namespace},
			bson.E{Key: "command", Value: op.Command})
	case oplog.ApplyOps:
		nested := make(bson.A, 0, len(op.Operations))
		for _, sub := range op.Operations {
			nested = append(nested, operationDocument(sub))
		}
		doc = append(doc,
			bson.E{Key: "ns", Value: op.Namespace},
			bson.E{Key: "operations", Value: nested})
	}
	return doc
}
