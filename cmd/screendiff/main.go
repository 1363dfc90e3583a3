package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/root4loot/goutils/log"
	"github.com/root4loot/screendiff"
	"github.com/root4loot/screendiff/pkg/config"
	"github.com/root4loot/screendiff/pkg/screener"
	"github.com/urfave/cli/v3"
)

const (
	author  = "@danielantonsen"
	version = "0.1.0"
	usage   = `USAGE:
  screendiff [options] (--urls <url>... | --domain <domain> (--paths <path>... | --file <file> | --xml <sitemap.xml>) | --file <file> | --xml <sitemap.xml>)

INPUT:
        --domain                 domain the paths are captured on
        --file                   file with paths or urls (JSON, YAML, XML sitemap or one per line)
        --paths, --path          one or more paths relative to --domain (requires --domain)
        --urls, --url            one or more absolute urls to capture
        --xml                    local sitemap with urls to capture

OUTPUT:
        --date-subfolder         place outputs in <date>/<time> subfolders                (Default: false)
        --label                  job name, used as an output subfolder
        --onload-script          JS function run in each page before capture              (Default: ./onload.js)
        --output-folder          folder to save outputs into                              (Default: screenshots)
        --reference, --ref       domain hosting the reference version
        --captions               add a mismatch caption to diff images                    (Default: false)
        --report                 write JSON results to file instead of stdout

PROCESSING:
        --parallel               number of parallel captures                              (Default: 10)
        --same-domain-delay      delay between requests to the same domain (seconds)      (Default: 0)
        --threshold              difference threshold as a percentage (0-100)             (Default: 1)
        --timeout                timeout for each capture (seconds)                       (Default: 30)
  --vh, --viewport-height        browser viewport height                                  (Default: 768)
  --vw, --viewport-width         browser viewport width                                   (Default: 1366)
        --wait                   wait after load before capture (seconds)                 (Default: 2)

BROWSER:
        --engine                 capture engine (rod or chromedp)                         (Default: rod)
        --stealth                hide headless browser fingerprints (rod only)            (Default: false)
  --ua, --user-agent             browser user agent                                       (Default: Chrome UA)
  --rce, --respect-cert-err      respect certificate errors                               (Default: false)
  --uh, --use-http2              use HTTP2                                                (Default: false)

GENERAL:
        --config                 config file (JSON or YAML)                               (Default: ./config.yaml)
  -s,   --silence                only log fatal errors
        --debug                  enable debug logging
  -v,   --version                display version
  -h,   --help                   display help

Every option can also be set with a SCREENDIFF_<OPTION> environment variable,
e.g. SCREENDIFF_SAME_DOMAIN_DELAY=1. A .env file in the working directory is
loaded on start.
`
)

var errInvalidSettings = errors.New("invalid settings")

// engineFunc creates the capture engine for a job.
type engineFunc func(name string, options screener.Options) (screener.Engine, error)

type app struct {
	newEngine engineFunc
	resolver  []config.Option
	runner    []screendiff.Option
}

func init() {
	log.Init("screendiff")
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warnf("Could not load .env: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{newEngine: screener.New}
	if err := a.command().Run(ctx, os.Args); err != nil {
		if !errors.Is(err, errInvalidSettings) {
			log.Errorf("%v", err)
		}
		os.Exit(1)
	}
}

func (a *app) command() *cli.Command {
	return &cli.Command{
		Name:                          "screendiff",
		Usage:                         "capture pages and diff them against a reference domain",
		Version:                       version,
		Authors:                       []any{author},
		Flags:                         flags(),
		MutuallyExclusiveFlags:        []cli.MutuallyExclusiveFlags{inputFlags()},
		CustomRootCommandHelpTemplate: usage,
		Action:                        a.run,
	}
}

func (a *app) run(ctx context.Context, cmd *cli.Command) error {
	setLogLevel(cmd)

	if err := checkInputFlags(cmd); err != nil {
		return err
	}

	job, err := config.NewResolver(config.Defaults(), a.resolver...).Resolve(overrides(cmd))
	var verr *config.ValidationError
	if errors.As(err, &verr) {
		printValidationError(cmd.ErrWriter, verr)
		return errInvalidSettings
	}
	if err != nil {
		return err
	}

	log.Debugf("Run %s: %d urls into %s", job.RunID, len(job.URLs), job.Folder)

	engine, err := a.newEngine(job.Engine, job.CaptureOptions())
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			log.Debugf("Error closing browser: %v", err)
		}
	}()

	results, err := screendiff.NewRunner(job, engine, a.runner...).Run(ctx)
	if err != nil {
		return err
	}

	changed := results.Changed()
	for _, id := range changed {
		log.Warnf("Changed: %s", results[id].URL)
	}
	log.Infof("Captured %d pages, %d changed", len(results), len(changed))

	return writeReport(cmd, results)
}

func printValidationError(w io.Writer, verr *config.ValidationError) {
	if w == nil {
		w = os.Stderr
	}
	fmt.Fprintln(w, "There were errors with the following settings in your configuration:")
	for _, f := range verr.Fields {
		fmt.Fprintf(w, "  - %s\n", f)
	}
}

func writeReport(cmd *cli.Command, results screendiff.Results) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding results: %w", err)
	}
	data = append(data, '\n')

	if path := cmd.String("report"); path != "" {
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("error writing report: %w", err)
		}
		log.Resultf("Report written to %s", path)
		return nil
	}

	w := cmd.Writer
	if w == nil {
		w = os.Stdout
	}
	_, err = w.Write(data)
	return err
}
