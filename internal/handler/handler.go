// Package handler drives a single input file through the pipeline state
// machine: initialise, resolve, check, publish, and notify, with three
// optional hooks for pipeline-specific behaviour between the fixed steps.
package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"tideflow/internal/config"
	"tideflow/internal/pipefile"
	"tideflow/internal/statequery"
	"tideflow/internal/steps"
	"tideflow/internal/steps/check"
	"tideflow/internal/steps/harvest"
	"tideflow/internal/steps/notify"
	"tideflow/internal/steps/resolve"
	"tideflow/internal/storage"
)

// Hooks are the pipeline-specific extension points. Each hook runs between
// fixed steps with full access to the handler; a nil hook is skipped. An
// error returned from a hook is fatal to the run.
type Hooks struct {
	// Preprocess runs after resolve, before checking. Typical use is
	// adjusting publish or check types on the resolved collection.
	Preprocess func(ctx context.Context, h *Handler) error
	// Process runs after checking, before publishing. Typical use is
	// generating product files into the products directory and adding them
	// to the collection.
	Process func(ctx context.Context, h *Handler) error
	// Postprocess runs after publishing, before notification.
	Postprocess func(ctx context.Context, h *Handler) error
}

// Options inject alternative step implementations, primarily for tests and
// for pipelines with custom path schemes. Zero-value fields fall back to the
// configuration-driven defaults.
type Options struct {
	DestPathFunc    PathFunc
	ArchivePathFunc PathFunc
	UploadBroker    storage.Broker
	ArchiveBroker   storage.Broker
	Resolver        steps.ResolveRunner
	Checker         steps.CheckRunner
	Harvester       steps.HarvestRunner
	Notifier        *notify.Notifier
	Logger          *slog.Logger
}

// Handler owns one run of the pipeline for one input file. A Handler is
// single-use: construct, call Run once, read the report.
type Handler struct {
	ID        string
	InputFile string

	cfg   *config.Config
	hooks Hooks
	log   *slog.Logger

	state State
	files *pipefile.Collection

	uploadBroker  storage.Broker
	archiveBroker storage.Broker
	stateQuery    *statequery.StateQuery
	resolver      steps.ResolveRunner
	checker       steps.CheckRunner
	harvester     steps.HarvestRunner
	notifier      *notify.Notifier

	destPathFn    PathFunc
	archivePathFn PathFunc

	includeRegexes []*regexp.Regexp
	excludeRegexes []*regexp.Regexp
	additionType   pipefile.PublishType
	deletionType   pipefile.PublishType

	collectionDir string
	productsDir   string
	tempDir       string

	notifications *notify.NotifyList
	inputChecksum string
	runErr        error
	started       time.Time
	ran           bool
}

// New constructs a handler for one input file against a validated
// configuration.
func New(inputFile string, cfg *config.Config, hooks Hooks, opts Options) (*Handler, error) {
	additionType, ok := pipefile.ParsePublishType(cfg.Pipeline.DefaultAdditionType)
	if !ok {
		return nil, steps.Wrap(steps.ErrConfiguration, "handler",
			fmt.Sprintf("unknown addition publish type %q", cfg.Pipeline.DefaultAdditionType), nil)
	}
	deletionType, ok := pipefile.ParsePublishType(cfg.Pipeline.DefaultDeletionType)
	if !ok {
		return nil, steps.Wrap(steps.ErrConfiguration, "handler",
			fmt.Sprintf("unknown deletion publish type %q", cfg.Pipeline.DefaultDeletionType), nil)
	}

	include, err := compileRegexes(cfg.Pipeline.IncludeRegexes)
	if err != nil {
		return nil, steps.Wrap(steps.ErrConfiguration, "handler", "compile include regexes", err)
	}
	exclude, err := compileRegexes(cfg.Pipeline.ExcludeRegexes)
	if err != nil {
		return nil, steps.Wrap(steps.ErrConfiguration, "handler", "compile exclude regexes", err)
	}

	destPathFn := opts.DestPathFunc
	if destPathFn == nil {
		destPathFn, err = newPathFunc(cfg.Pipeline.DestPathStrategy, cfg.Pipeline.Name)
		if err != nil {
			return nil, steps.Wrap(steps.ErrConfiguration, "handler", "dest path strategy", err)
		}
	}
	archivePathFn := opts.ArchivePathFunc
	if archivePathFn == nil {
		archivePathFn, err = newPathFunc(cfg.Pipeline.ArchivePathStrategy, cfg.Pipeline.Name)
		if err != nil {
			return nil, steps.Wrap(steps.ErrConfiguration, "handler", "archive path strategy", err)
		}
	}

	id := uuid.NewString()
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	runDir := filepath.Join(cfg.Paths.WorkingDir, cfg.Pipeline.Name, id)

	// The notifier is built here rather than in initialise so the error
	// branch can still attempt delivery when initialisation itself fails.
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.NewNotifier(
			cfg.Notify.FromAddress,
			cfg.Notify.SMTPHost,
			cfg.Notify.SMTPPort,
			time.Duration(cfg.Notify.RequestTimeout)*time.Second,
			logger,
		)
	}

	h := &Handler{
		ID:             id,
		InputFile:      inputFile,
		cfg:            cfg,
		hooks:          hooks,
		log:            logger.With(slog.String("component", "handler"), slog.String("handler_id", id)),
		uploadBroker:   opts.UploadBroker,
		archiveBroker:  opts.ArchiveBroker,
		resolver:       opts.Resolver,
		checker:        opts.Checker,
		harvester:      opts.Harvester,
		notifier:       notifier,
		destPathFn:     destPathFn,
		archivePathFn:  archivePathFn,
		includeRegexes: include,
		excludeRegexes: exclude,
		additionType:   additionType,
		deletionType:   deletionType,
		collectionDir:  filepath.Join(runDir, "collection"),
		productsDir:    filepath.Join(runDir, "products"),
		tempDir:        filepath.Join(runDir, "temp"),
	}
	return h, nil
}

// State returns the current lifecycle state.
func (h *Handler) State() State { return h.state }

// Files returns the resolved collection, nil before resolution.
func (h *Handler) Files() *pipefile.Collection { return h.files }

// Config returns the configuration the handler runs against.
func (h *Handler) Config() *config.Config { return h.cfg }

// ProductsDir is where Process hooks write generated files.
func (h *Handler) ProductsDir() string { return h.productsDir }

// TempDir is scratch space scoped to the run.
func (h *Handler) TempDir() string { return h.tempDir }

// StateQuery exposes read-only access to the published state of the upload
// storage for use inside hooks. It is available from the initialised state.
func (h *Handler) StateQuery() *statequery.StateQuery { return h.stateQuery }

// Run executes the full state machine and returns the report. A second call
// returns a failed report without side effects.
func (h *Handler) Run(ctx context.Context) *Report {
	if h.ran {
		return &Report{
			HandlerID: h.ID,
			Pipeline:  h.cfg.Pipeline.Name,
			InputFile: h.InputFile,
			Result:    ResultFailed,
			State:     h.state,
			Error:     "handler instances are single-use",
		}
	}
	h.ran = true
	h.started = time.Now()
	h.log.Info("run started", slog.String("input_file", h.InputFile))

	linear := []struct {
		next State
		step func(context.Context) error
	}{
		{StateInitialised, h.initialise},
		{StateResolved, h.resolveStep},
		{StatePreprocessed, h.hookStep(h.hooks.Preprocess)},
		{StateChecked, h.checkStep},
		{StateProcessed, h.hookStep(h.hooks.Process)},
		{StatePublished, h.publishStep},
		{StatePostprocessed, h.hookStep(h.hooks.Postprocess)},
	}
	for _, transition := range linear {
		if err := transition.step(ctx); err != nil {
			h.runErr = err
			h.log.Error("run aborted",
				slog.String("state", h.state.String()),
				slog.String("error", err.Error()))
			break
		}
		h.state = transition.next
		h.log.Debug("state reached", slog.String("state", h.state.String()))
	}

	h.notifyStep(ctx)
	return h.complete()
}

func (h *Handler) hookStep(hook func(context.Context, *Handler) error) func(context.Context) error {
	return func(ctx context.Context) error {
		if hook == nil {
			return nil
		}
		if err := hook(ctx, h); err != nil {
			return steps.Wrap(steps.ErrSystem, "hook", "", err)
		}
		return nil
	}
}

// initialise validates the input reference and prepares run-local state:
// working directories, storage brokers, step runners, and the input
// checksum.
func (h *Handler) initialise(ctx context.Context) error {
	info, err := os.Stat(h.InputFile)
	if err != nil {
		return steps.Wrap(steps.ErrValidation, "initialise", "input file", err)
	}
	if info.IsDir() {
		return steps.Wrap(steps.ErrValidation, "initialise",
			fmt.Sprintf("input %q is a directory", h.InputFile), nil)
	}
	if err := h.checkExtension(); err != nil {
		return err
	}
	sum, err := pipefile.ChecksumFile(h.InputFile)
	if err != nil {
		return steps.Wrap(steps.ErrValidation, "initialise", "checksum input", err)
	}
	h.inputChecksum = sum

	for _, dir := range []string{h.collectionDir, h.productsDir, h.tempDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return steps.Wrap(steps.ErrSystem, "initialise", "create working directory", err)
		}
	}

	if h.uploadBroker == nil {
		broker, err := storage.NewBroker(ctx, h.cfg.Storage.UploadURI, h.cfg.Storage.S3Region)
		if err != nil {
			return err
		}
		h.uploadBroker = broker
	}
	if h.archiveBroker == nil && h.cfg.Storage.ArchiveURI != "" {
		broker, err := storage.NewBroker(ctx, h.cfg.Storage.ArchiveURI, h.cfg.Storage.S3Region)
		if err != nil {
			return err
		}
		h.archiveBroker = broker
	}
	h.stateQuery = statequery.New(h.uploadBroker)

	if h.resolver == nil {
		h.resolver = resolve.NewRunner(h.InputFile, h.collectionDir, h.cfg.Resolve.ManifestRoot, h.log)
	}
	if h.checker == nil {
		checker, err := check.NewRunner(h.cfg.Check.Strategy, h.log)
		if err != nil {
			return err
		}
		h.checker = checker
	}
	if h.harvester == nil {
		harvester, err := harvest.NewRunner(h.cfg.Harvest.Strategy, h.cfg.Harvest.DatabasePath, h.cfg.Harvest.Command, h.log)
		if err != nil {
			return err
		}
		h.harvester = harvester
	}
	h.log.Info("initialised",
		slog.String("checksum", sum),
		slog.Int64("size", info.Size()))
	return nil
}

func (h *Handler) checkExtension() error {
	allowed := h.cfg.Pipeline.AllowedExtensions
	if len(allowed) == 0 {
		return nil
	}
	ext := strings.ToLower(filepath.Ext(h.InputFile))
	if !slices.Contains(allowed, ext) {
		return steps.Wrap(steps.ErrValidation, "initialise",
			fmt.Sprintf("extension %q not in allowed extensions %v", ext, allowed), nil)
	}
	return nil
}

// resolveStep expands the input into the collection and classifies the
// members: publish types from the include/exclude regexes, NO_ACTION for
// everything unmatched, and default check types for actionable additions.
func (h *Handler) resolveStep(ctx context.Context) error {
	files, err := h.resolver.Run(ctx)
	if err != nil {
		if steps.IsFatal(err) || errors.Is(err, steps.ErrNotFound) || errors.Is(err, pipefile.ErrDuplicateFile) {
			return err
		}
		return steps.Wrap(steps.ErrSystem, "resolve", "", err)
	}
	if files.Len() == 0 {
		return steps.Wrap(steps.ErrValidation, "resolve", "input resolved to an empty collection", nil)
	}
	files.SetUpdateFunc(func(name, attribute, value string) {
		h.log.Debug("file updated",
			slog.String("file", name),
			slog.String(attribute, value))
	})

	if err := files.SetPublishTypesFromRegexes(h.includeRegexes, h.excludeRegexes, h.additionType, h.deletionType); err != nil {
		return steps.Wrap(steps.ErrValidation, "resolve", "assign publish types", err)
	}
	for _, f := range files.FilterByPublishType(pipefile.PublishUnset).Files() {
		if err := f.SetPublishType(pipefile.PublishNoAction); err != nil {
			return steps.Wrap(steps.ErrValidation, "resolve", "assign publish types", err)
		}
	}
	for _, f := range files.FilterByPublishType(pipefile.PublishNoAction).Additions().Files() {
		if err := f.SetCheckType(pipefile.CheckNoAction); err != nil {
			return steps.Wrap(steps.ErrValidation, "resolve", "assign check types", err)
		}
	}
	if err := files.SetDefaultCheckTypes(); err != nil {
		return steps.Wrap(steps.ErrValidation, "resolve", "assign check types", err)
	}

	h.files = files
	h.log.Info("resolved",
		slog.Int("additions", files.Additions().Len()),
		slog.Int("deletions", files.Deletions().Len()))
	return nil
}

func (h *Handler) checkStep(ctx context.Context) error {
	if err := h.checker.Run(ctx, h.files); err != nil {
		if steps.IsFatal(err) {
			return err
		}
		return steps.Wrap(steps.ErrSystem, "check", "", err)
	}
	failed := h.files.Filter(func(f *pipefile.File) bool { return f.IsChecked() && !f.CheckPassed() })
	if failed.Len() > 0 {
		h.log.Warn("checks failed", slog.Int("files", failed.Len()))
	}
	return nil
}

// publishStep performs the storage-facing actions in a fixed order: archive
// the original input, compute keys, flag overwrites, archive, harvest,
// upload, then delete. Files that failed checking are excluded from every
// action; their failure is already recorded.
func (h *Handler) publishStep(ctx context.Context) error {
	publishable := h.files.Filter((*pipefile.File).CheckPassed)

	if h.cfg.Pipeline.ArchiveInputFile {
		if err := h.archiveInput(ctx); err != nil {
			return err
		}
	}
	if err := publishable.SetDestPaths(h.destPathFn); err != nil {
		return steps.Wrap(steps.ErrValidation, "publish", "compute dest paths", err)
	}
	if err := publishable.SetArchivePaths(h.archivePathFn); err != nil {
		return steps.Wrap(steps.ErrValidation, "publish", "compute archive paths", err)
	}
	if err := storage.SetOverwriteFlags(ctx, h.uploadBroker, publishable); err != nil {
		return err
	}

	if pending := publishable.PendingArchive(); pending.Len() > 0 {
		if h.archiveBroker == nil {
			return steps.Wrap(steps.ErrConfiguration, "publish",
				"collection requires archiving but storage.archive_uri is not set", nil)
		}
		if err := storage.ArchiveCollection(ctx, h.archiveBroker, pending); err != nil {
			return err
		}
	}
	if pending := publishable.PendingHarvest(); pending.Len() > 0 {
		if err := h.harvester.Run(ctx, pending); err != nil {
			if steps.IsFatal(err) {
				return err
			}
			return steps.Wrap(steps.ErrSystem, "publish", "harvest", err)
		}
	}

	earlyDeletions := publishable.Deletions().Filter(func(f *pipefile.File) bool { return !f.LateDeletion })
	if err := storage.DeleteCollection(ctx, h.uploadBroker, earlyDeletions.PendingStore()); err != nil {
		return err
	}
	if err := storage.UploadCollection(ctx, h.uploadBroker, publishable.PendingStore().Additions()); err != nil {
		return err
	}
	lateDeletions := publishable.Deletions().Filter(func(f *pipefile.File) bool { return f.LateDeletion })
	if err := storage.DeleteCollection(ctx, h.uploadBroker, lateDeletions.PendingStore()); err != nil {
		return err
	}

	failed := publishable.Filter((*pipefile.File).PublishFailed)
	if failed.Len() > 0 {
		h.log.Warn("publish finished with per-file failures", slog.Int("files", failed.Len()))
	}
	return nil
}

// archiveInput uploads the original input file to the archive storage so the
// exact bytes that triggered the run can be replayed later.
func (h *Handler) archiveInput(ctx context.Context) error {
	if h.archiveBroker == nil {
		return steps.Wrap(steps.ErrConfiguration, "publish",
			"archive_input_file requires storage.archive_uri", nil)
	}
	fh, err := os.Open(h.InputFile)
	if err != nil {
		return steps.Wrap(steps.ErrSystem, "publish", "open input for archive", err)
	}
	defer fh.Close()

	key := h.archivePathFn(h.InputFile)
	if err := h.archiveBroker.Put(ctx, key, fh, pipefile.TypeFromName(h.InputFile).MIMEType()); err != nil {
		return steps.Wrap(steps.ErrSystem, "publish", "archive input file", err)
	}
	h.log.Info("archived input file", slog.String("key", key))
	return nil
}

// notifyStep runs the success or error notify branch depending on whether a
// fatal error aborted the linear states. It always reaches the branch state,
// even when initialisation failed. Configuration errors suppress delivery
// entirely since the notify settings themselves are suspect.
func (h *Handler) notifyStep(ctx context.Context) {
	if h.runErr != nil {
		h.state = StateNotifiedError
	} else {
		h.state = StateNotifiedSuccess
	}
	if h.runErr != nil && errors.Is(h.runErr, steps.ErrConfiguration) {
		h.log.Warn("notification suppressed for configuration error")
		return
	}

	var specs []string
	if h.runErr != nil {
		specs = append(specs, h.cfg.Notify.ErrorList...)
		if h.cfg.Notify.NotifyOwnerError {
			specs = append(specs, h.cfg.Notify.OwnerList...)
		}
	} else {
		specs = append(specs, h.cfg.Notify.SuccessList...)
		if h.cfg.Notify.NotifyOwnerSuccess {
			specs = append(specs, h.cfg.Notify.OwnerList...)
		}
	}
	h.notifications = notify.NewNotifyList(specs...)
	if h.notifications.Len() > 0 {
		report := notify.Report{
			PipelineName: h.cfg.Pipeline.Name,
			InputFile:    h.InputFile,
			HandlerID:    h.ID,
			Result:       h.result().String(),
			Elapsed:      time.Since(h.started),
			Files:        h.files,
		}
		if h.runErr != nil {
			report.Error = h.runErr.Error()
		}
		msg := notify.Message{Subject: report.Subject(), Body: report.Body()}
		if err := h.notifier.Notify(ctx, h.notifications, msg); err != nil {
			h.log.Error("notify aborted", slog.String("error", err.Error()))
		}
	}
}

// result derives the overall outcome from the fatal error and the recorded
// per-file outcomes. Recipient delivery failures stay on the NotifyList and
// never change the result.
func (h *Handler) result() Result {
	if h.runErr != nil {
		return ResultFailed
	}
	if h.files != nil {
		for _, f := range h.files.Files() {
			if f.PublishFailed() || (f.IsChecked() && !f.CheckPassed()) {
				return ResultSuccessWithWarnings
			}
		}
	}
	return ResultSuccess
}

func (h *Handler) complete() *Report {
	result := h.result()
	if result == ResultSuccess {
		h.state = StateCompleted
	} else {
		h.state = StateCompletedWithErrors
	}

	report := &Report{
		HandlerID:     h.ID,
		Pipeline:      h.cfg.Pipeline.Name,
		InputFile:     h.InputFile,
		InputChecksum: h.inputChecksum,
		Result:        result,
		State:         h.state,
		Elapsed:       time.Since(h.started),
		Files:         h.files,
		Notifications: h.notifications,
	}
	if h.runErr != nil {
		report.Error = h.runErr.Error()
	}
	h.log.Info("run finished",
		slog.String("result", result.String()),
		slog.String("state", h.state.String()),
		slog.Duration("elapsed", report.Elapsed))
	return report
}

func compileRegexes(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}
