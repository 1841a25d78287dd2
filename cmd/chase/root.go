package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/wbrown/janus-chase/datalog"
	"github.com/wbrown/janus-chase/datalog/annotations"
	"github.com/wbrown/janus-chase/datalog/config"
	"github.com/wbrown/janus-chase/datalog/dlgp"
	"github.com/wbrown/janus-chase/datalog/homomorphism"
	"github.com/wbrown/janus-chase/datalog/logging"
	"github.com/wbrown/janus-chase/datalog/metrics"
	"github.com/wbrown/janus-chase/datalog/storage"
)

type rootParams struct {
	configFile string
	store      string
	path       string
	logLevel   string
	logFormat  string
	verbose    bool
}

func newRootCommand() *cobra.Command {
	params := &rootParams{}
	root := &cobra.Command{
		Use:          "chase",
		Short:        "Existential rules reasoner",
		Long:         "Saturate DLGP knowledge bases with the chase and answer their conjunctive queries.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return checkEnvironmentVariables(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&params.configFile, "config", "c", "", "config file (YAML, TOML or JSON)")
	flags.StringVar(&params.store, "store", "", "fact store: memory, badger or sqlite")
	flags.StringVar(&params.path, "path", "", "store path (badger directory or sqlite file)")
	flags.StringVar(&params.logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.StringVar(&params.logFormat, "log-format", "", "log format: text or json")
	flags.BoolVarP(&params.verbose, "verbose", "v", false, "print chase and search events")

	root.AddCommand(
		newRunCommand(params),
		newQueryCommand(params),
		newStepCommand(params),
	)
	return root
}

// session is what every subcommand needs: settings, logger, events, metrics
// and an open store
type session struct {
	cfg     config.Config
	log     logging.Logger
	handler annotations.Handler
	metrics metrics.Metrics
	store   storage.Store
	stdout  io.Writer
	stderr  io.Writer
}

// load reads the config file and environment, then applies the flags the
// user set
func (p *rootParams) load(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(p.configFile)
	if err != nil {
		return config.Config{}, err
	}
	flags := cmd.Flags()
	if flags.Changed("store") {
		cfg.Store.Kind = p.store
	}
	if flags.Changed("path") {
		cfg.Store.Path = p.path
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = p.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = p.logFormat
	}
	if flags.Changed("verbose") {
		cfg.Verbose = p.verbose
	}
	return cfg, nil
}

func (p *rootParams) open(cmd *cobra.Command, cfg config.Config) (*session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &session{
		cfg:     cfg,
		metrics: metrics.New(),
		stdout:  cmd.OutOrStdout(),
		stderr:  cmd.ErrOrStderr(),
	}

	log, err := logging.NewWith(cfg.Log.Level, cfg.Log.Format, s.stderr)
	if err != nil {
		return nil, err
	}
	s.log = log
	if cfg.Verbose {
		s.handler = annotations.NewOutputFormatter(s.stderr).Handle
	}

	store, err := cfg.OpenStore()
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Kind, err)
	}
	s.store = store
	return s, nil
}

func (s *session) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}

func (s *session) solver() *homomorphism.Solver {
	return homomorphism.New(
		homomorphism.WithCache(homomorphism.NewPatternCache(s.cfg.CacheSize)),
		homomorphism.WithHandler(s.handler),
		homomorphism.WithNativeEvaluation(s.cfg.Native),
	)
}

// parse reads the DLGP files and loads their facts into the store
func (s *session) parse(paths []string) (*dlgp.Document, error) {
	t := s.metrics.Timer(metrics.ParseFiles)
	t.Start()
	doc, err := dlgp.ParseFiles(paths...)
	t.Stop()
	if err != nil {
		return nil, err
	}
	if n := len(doc.Constraints); n > 0 {
		s.log.Warnf("ignoring %d negative constraint(s)", n)
	}

	t = s.metrics.Timer(metrics.StoreLoad)
	t.Start()
	added, err := storage.Load(s.store, doc.Facts)
	t.Stop()
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logging.Fields{
		"files": len(paths),
		"facts": len(doc.Facts),
		"added": added,
		"rules": len(doc.Rules),
	}).Infof("loaded knowledge base")
	return doc, nil
}

func (s *session) printMetrics() error {
	bs, err := s.metrics.MarshalJSON()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(s.stderr, string(bs))
	return err
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%.1fms", float64(d.Microseconds())/1000)
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}

func answerSummary(q *datalog.ConjunctiveQuery, n int) string {
	if q.IsBoolean() {
		return fmt.Sprintf("%s %t", q, n > 0)
	}
	return fmt.Sprintf("%s %d answer(s)", q, n)
}
