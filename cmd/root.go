// Package cmd is the i2cflash command line: every engine operation as a subcommand, plus
// an HTTP server for driving the chip remotely.
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"i2cflash/internal/xfer"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

const (
	ENV_BUS		= "I2CFLASH_BUS"
	ENV_CHIP	= "I2CFLASH_CHIP"
	ENV_MODE	= "I2CFLASH_MODE"
	ENV_RETRIES	= "I2CFLASH_RETRIES"
	ENV_LISTEN	= "I2CFLASH_LISTEN"
)

// options are the persistent flags shared by every subcommand.
type options struct {
	bus			string
	chip		uint16
	mode		string
	retries		int
	backoff		time.Duration
	verbose		bool
	log			*slog.Logger
}

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envIntOr(key string, def int) int {
	v, err := strconv.ParseInt(envOr(key, ""), 0, 64)
	if err != nil {
		return def
	}
	return int(v)
}

func (o *options) engineOpts() ([]xfer.Option, error) {
	var mode xfer.Mode
	switch o.mode {
	case "blocking":
		mode = xfer.ModeBlocking
	case "non-blocking", "nonblocking", "":
		mode = xfer.ModeNonBlocking
	default:
		return nil, fmt.Errorf("unknown mode %q (want blocking or non-blocking)", o.mode)
	}
	if o.retries < 0 {
		return nil, fmt.Errorf("retries cannot be negative")
	}

	opts := []xfer.Option{
		xfer.WithMode(mode),
		xfer.WithRetry(o.retries, o.backoff),
		xfer.WithLogger(o.log),
	}
	if o.retries == 0 {
		opts = append(opts, xfer.WithUnboundedRetry())
	}
	return opts, nil
}

func newRootCmd(stderr io.Writer) *cobra.Command {
	o := &options{}

	root := &cobra.Command{
		Use:	"i2cflash",
		Short:	"Read, write and erase a 24FC256 serial EEPROM",
		Long: `i2cflash drives a 24FC256 (512 pages of 64 bytes) through a Linux I2C adapter, ` +
			`a file-backed image or an in-process simulator. Flag defaults come from the ` +
			`environment (I2CFLASH_*), which is also read from a .env file when present.`,
		SilenceUsage:	true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := slog.LevelInfo
			if o.verbose {
				level = slog.LevelDebug
			}
			o.log = slog.New(tint.NewHandler(stderr, &tint.Options{
				Level:		level,
				TimeFormat:	time.TimeOnly,
			}))
			slog.SetDefault(o.log)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&o.bus, "bus", envOr(ENV_BUS, "sim"), "bus to use: sim (in-process, memory is lost when the command exits), image:<path> or i2c:<adapter>")
	pf.Uint16Var(&o.chip, "chip", uint16(envIntOr(ENV_CHIP, 0x54)), "7-bit chip address on an i2c bus")
	pf.StringVar(&o.mode, "mode", envOr(ENV_MODE, "non-blocking"), "engine mode: blocking or non-blocking")
	pf.IntVar(&o.retries, "retries", envIntOr(ENV_RETRIES, 64), "attempts per page transaction, 0 for no limit")
	pf.DurationVar(&o.backoff, "backoff", 500*time.Microsecond, "pause between attempts")
	pf.BoolVarP(&o.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newReadCmd(o),
		newDigestCmd(o),
		newWriteCmd(o),
		newEraseCmd(o),
		newStatusCmd(o),
		newPointerCmd(o),
		newServeCmd(o),
	)
	return root
}

// Execute runs the command line and exits. Anything registered with atexit (open
// engines and buses) is released on the way out.
func Execute() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "i2cflash: .env: %v\n", err)
	}

	root := newRootCmd(os.Stderr)
	if err := root.Execute(); err != nil {
		atexit.Exit(1)
	}
	atexit.Exit(0)
}
