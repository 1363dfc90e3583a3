package main

import (
	"errors"
	"strings"

	"github.com/root4loot/goutils/log"
	"github.com/root4loot/screendiff/pkg/config"
	"github.com/urfave/cli/v3"
)

const (
	inputCategory      = "INPUT"
	outputCategory     = "OUTPUT"
	processingCategory = "PROCESSING"
	browserCategory    = "BROWSER"
)

func env(name string) cli.ValueSourceChain {
	return cli.EnvVars("SCREENDIFF_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_")))
}

// inputFlags returns the mutually exclusive input sources. --domain is not
// part of the group since it combines with --paths, --file and --xml.
func inputFlags() cli.MutuallyExclusiveFlags {
	return cli.MutuallyExclusiveFlags{
		Category: inputCategory,
		Flags: [][]cli.Flag{
			{&cli.StringSliceFlag{Name: "urls", Aliases: []string{"url"}, Usage: "one or more urls to capture", Sources: env("urls")}},
			{&cli.StringFlag{Name: "file", Usage: "file with paths or urls (JSON, YAML, XML sitemap or one per line)", Sources: env("file")}},
			{&cli.StringSliceFlag{Name: "paths", Aliases: []string{"path"}, Usage: "one or more paths relative to --domain", Sources: env("paths")}},
			{&cli.StringFlag{Name: "xml", Usage: "local sitemap with urls to capture", Sources: env("xml")}},
		},
	}
}

func flags() []cli.Flag {
	d := config.Defaults()

	return []cli.Flag{
		&cli.StringFlag{Name: "config", Usage: "config file (JSON or YAML)", Value: "./" + d.Config, Sources: env("config")},

		&cli.StringFlag{Name: "domain", Category: inputCategory, Usage: "domain the paths are captured on", Sources: env("domain")},

		&cli.BoolFlag{Name: "date-subfolder", Category: outputCategory, Usage: "place outputs in date/time subfolders", Value: *d.DateSubfolder, Sources: env("date-subfolder")},
		&cli.StringFlag{Name: "label", Category: outputCategory, Usage: "job name, used as an output subfolder", Sources: env("label")},
		&cli.StringFlag{Name: "onload-script", Category: outputCategory, Usage: "JS function run in each page before capture", Value: "./" + d.OnloadScript, Sources: env("onload-script")},
		&cli.StringFlag{Name: "output-folder", Category: outputCategory, Usage: "folder to save outputs into", Value: *d.OutputFolder, Sources: env("output-folder")},
		&cli.StringFlag{Name: "reference", Aliases: []string{"ref"}, Category: outputCategory, Usage: "domain hosting the reference version", Sources: env("reference")},
		&cli.BoolFlag{Name: "captions", Category: outputCategory, Usage: "add a mismatch caption to diff images", Value: *d.Captions, Sources: env("captions")},
		&cli.StringFlag{Name: "report", Category: outputCategory, Usage: "write JSON results to file instead of stdout", Sources: env("report")},

		&cli.IntFlag{Name: "parallel", Category: processingCategory, Usage: "number of parallel captures", Value: *d.Parallel, Sources: env("parallel")},
		&cli.FloatFlag{Name: "same-domain-delay", Category: processingCategory, Usage: "delay between requests to the same domain (seconds)", Value: *d.SameDomainDelay, Sources: env("same-domain-delay")},
		&cli.FloatFlag{Name: "threshold", Category: processingCategory, Usage: "difference threshold as a percentage (0-100)", Value: *d.Threshold, Sources: env("threshold")},
		&cli.FloatFlag{Name: "timeout", Category: processingCategory, Usage: "timeout for each capture (seconds)", Value: *d.Timeout, Sources: env("timeout")},
		&cli.IntFlag{Name: "viewport-height", Aliases: []string{"vh"}, Category: processingCategory, Usage: "browser viewport height", Value: *d.ViewportHeight, Sources: env("viewport-height")},
		&cli.IntFlag{Name: "viewport-width", Aliases: []string{"vw"}, Category: processingCategory, Usage: "browser viewport width", Value: *d.ViewportWidth, Sources: env("viewport-width")},
		&cli.FloatFlag{Name: "wait", Category: processingCategory, Usage: "wait after load before capture (seconds)", Value: *d.Wait, Sources: env("wait")},

		&cli.StringFlag{Name: "engine", Category: browserCategory, Usage: "capture engine (rod or chromedp)", Value: d.Engine, Sources: env("engine")},
		&cli.BoolFlag{Name: "stealth", Category: browserCategory, Usage: "hide headless browser fingerprints (rod only)", Value: *d.Stealth, Sources: env("stealth")},
		&cli.StringFlag{Name: "user-agent", Aliases: []string{"ua"}, Category: browserCategory, Usage: "browser user agent", Value: d.UserAgent, Sources: env("user-agent")},
		&cli.BoolFlag{Name: "respect-cert-err", Aliases: []string{"rce"}, Category: browserCategory, Usage: "respect certificate errors", Value: *d.RespectCertErrors, Sources: env("respect-cert-err")},
		&cli.BoolFlag{Name: "use-http2", Aliases: []string{"uh"}, Category: browserCategory, Usage: "use HTTP2", Value: *d.UseHTTP2, Sources: env("use-http2")},

		&cli.BoolFlag{Name: "debug", Usage: "enable debug logging", Sources: env("debug")},
		&cli.BoolFlag{Name: "silence", Aliases: []string{"s"}, Usage: "only log fatal errors", Sources: env("silence")},
	}
}

// checkInputFlags enforces the pairings the input group cannot express.
func checkInputFlags(cmd *cli.Command) error {
	if cmd.IsSet("urls") && cmd.IsSet("domain") {
		return errors.New("option urls cannot be set along with option domain")
	}
	if cmd.IsSet("paths") && !cmd.IsSet("domain") {
		return errors.New("option paths requires option domain")
	}
	return nil
}

// overrides returns the settings explicitly set on the command line or in
// the environment. Flag defaults are left out so they do not shadow the
// config file.
func overrides(cmd *cli.Command) config.Settings {
	var s config.Settings

	setString := func(dst *string, name string) {
		if cmd.IsSet(name) {
			*dst = cmd.String(name)
		}
	}

	setString(&s.Config, "config")
	setString(&s.Domain, "domain")
	setString(&s.XML, "xml")
	setString(&s.Label, "label")
	setString(&s.OnloadScript, "onload-script")
	setString(&s.Reference, "reference")
	setString(&s.Engine, "engine")
	setString(&s.UserAgent, "user-agent")

	if cmd.IsSet("paths") {
		s.Paths = cmd.StringSlice("paths")
	}
	if cmd.IsSet("urls") {
		s.URLs = cmd.StringSlice("urls")
	}
	if cmd.IsSet("file") {
		entries, err := config.LoadInputList(cmd.String("file"))
		if err != nil {
			log.Warnf("Could not read %s: %v", cmd.String("file"), err)
			s.ClearInput = true
		}
		s.URLs = entries
	}
	if cmd.IsSet("output-folder") {
		s.OutputFolder = config.Ptr(cmd.String("output-folder"))
	}

	for name, dst := range map[string]**bool{
		"date-subfolder":   &s.DateSubfolder,
		"captions":         &s.Captions,
		"stealth":          &s.Stealth,
		"respect-cert-err": &s.RespectCertErrors,
		"use-http2":        &s.UseHTTP2,
	} {
		if cmd.IsSet(name) {
			*dst = config.Ptr(cmd.Bool(name))
		}
	}

	for name, dst := range map[string]**int{
		"parallel":        &s.Parallel,
		"viewport-height": &s.ViewportHeight,
		"viewport-width":  &s.ViewportWidth,
	} {
		if cmd.IsSet(name) {
			*dst = config.Ptr(cmd.Int(name))
		}
	}

	for name, dst := range map[string]**float64{
		"same-domain-delay": &s.SameDomainDelay,
		"threshold":         &s.Threshold,
		"timeout":           &s.Timeout,
		"wait":              &s.Wait,
	} {
		if cmd.IsSet(name) {
			*dst = config.Ptr(cmd.Float(name))
		}
	}

	return s
}

// setLogLevel sets the log level from --debug and --silence.
func setLogLevel(cmd *cli.Command) {
	switch {
	case cmd.Bool("silence"):
		log.SetLevel(log.FatalLevel)
	case cmd.Bool("debug"):
		log.SetLevel(log.DebugLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
}
