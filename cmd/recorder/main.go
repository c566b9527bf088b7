package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"

	customlog "github.com/open-teleop/go2bridge/pkg/log"
	"github.com/open-teleop/go2bridge/pkg/recorder"
	"github.com/open-teleop/go2bridge/pkg/zeromq"
)

type Options struct {
	Connect  string        `long:"connect" default:"tcp://localhost:5558" description:"Operator telemetry PUB address"`
	Output   string        `short:"o" long:"output" default:"telemetry.jsonl" description:"File to append records to"`
	Topics   []string      `long:"topic" description:"Topic to record (repeatable, default all)"`
	Interval time.Duration `long:"interval" default:"0s" description:"Keep at most one record per topic per interval"`
	LogLevel string        `long:"log-level" default:"info" description:"Log level"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
}

func run(opts Options) error {
	logger, err := customlog.NewLogrusLogger(opts.LogLevel, "")
	if err != nil {
		return err
	}

	out, err := os.OpenFile(opts.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open output: %w", err)
	}
	defer out.Close()

	rec := recorder.New(out, opts.Interval, logger)
	sub, err := zeromq.NewSubscriber(opts.Connect, opts.Topics, logger)
	if err != nil {
		return err
	}
	sub.Start(rec.Handle)
	logger.Infof("Recording %s to %s", opts.Connect, opts.Output)

	flush := time.NewTicker(time.Second)
	defer flush.Stop()
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-flush.C:
			if err := rec.Flush(); err != nil {
				logger.Errorf("%v", err)
			}
		case <-quit:
			sub.Stop()
			if err := rec.Flush(); err != nil {
				logger.Errorf("%v", err)
			}
			counts, skipped := rec.Counts()
			for topic, n := range counts {
				logger.Infof("Recorded %d %s messages", n, topic)
			}
			logger.Infof("Throttled %d messages", skipped)
			return nil
		}
	}
}
