package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"neurojudge/internal/evaluator/loader"
	"neurojudge/internal/evaluator/model"
	"neurojudge/internal/evaluator/notify"
	"neurojudge/internal/evaluator/telemetry"
	"neurojudge/internal/evaluator/vcs"
	"neurojudge/internal/evaluator/workspace"
	appErr "neurojudge/pkg/errors"
	"neurojudge/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	phaseValidate = "validate"
	phaseExecute  = "execute"
)

// Outcome messages posted to submitters.
const (
	MessageValidationSucceeded = "Validation successful"
	MessageValidationFailed    = "Validation failed:"
	MessageExecutionSucceeded  = "Execution successful"
	MessageExecutionFailed     = "Execution failed"
)

// Reasons reported when a submission fails validation.
const (
	ReasonNotMergeable   = "Submission cannot be merged"
	ReasonInfoMissing    = "Missing info.json"
	ReasonInfoUnreadable = "Cannot read info.json file"
	ReasonInfoMalformed  = "Error parsing info.json file"
	ReasonEntryMissing   = "Missing run.py"
	ReasonMarkerMissing  = "Missing __init__.py"
	ReasonImportFailed   = "Cannot import run from run.py"
)

// ReasonRootMissing is reported when the submitter's directory is absent.
func ReasonRootMissing(login string) string {
	return fmt.Sprintf("Missing directory %s/%s", workspace.SubmissionsDir, login)
}

// ValidationMessage renders the notification text for a set of failure reasons.
func ValidationMessage(reasons []string) string {
	if len(reasons) == 0 {
		return MessageValidationSucceeded
	}
	return MessageValidationFailed + "\n" + strings.Join(reasons, "\n")
}

// Validator checks that a submission's checkout has the expected layout and
// that its entry point imports.
type Validator struct {
	vcs      vcs.Materializer
	loader   loader.Loader
	store    StatusStore
	notifier notify.Notifier
}

// NewValidator creates a validator.
func NewValidator(m vcs.Materializer, l loader.Loader, store StatusStore, n notify.Notifier) *Validator {
	return &Validator{vcs: m, loader: l, store: store, notifier: n}
}

// Validate runs every check, records success on the validated flag and posts
// the outcome. A failed check is reported through ok and message; err is
// reserved for failures to perform the validation at all.
func (v *Validator) Validate(ctx context.Context, sub model.Submission) (ok bool, message string, err error) {
	ctx = logger.WithPhase(logger.WithSubmission(ctx, sub.ID), phaseValidate)
	start := time.Now()
	defer func() {
		outcome := telemetry.OutcomeSuccess
		switch {
		case err != nil:
			outcome = telemetry.OutcomeError
		case !ok:
			outcome = telemetry.OutcomeFailure
		}
		telemetry.ObservePhase(phaseValidate, outcome, time.Since(start).Seconds())
	}()

	dir, err := v.vcs.Materialize(ctx, sub.SourceURL, sub.Branch)
	if err != nil {
		return false, "", err
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			logger.Warn(ctx, "remove checkout failed", zap.String("dir", dir), zap.Error(rmErr))
		}
	}()

	reasons := v.check(ctx, sub, workspace.Resolve(dir, sub.Login))
	ok = len(reasons) == 0
	if ok {
		if err := v.store.MarkStatus(ctx, sub.ID, model.FlagValidated); err != nil {
			return false, "", err
		}
	}

	message = ValidationMessage(reasons)
	logger.Info(ctx, "validation finished", zap.Bool("ok", ok), zap.Strings("reasons", reasons))
	if err := v.notifier.Post(ctx, sub, message); err != nil {
		logger.Warn(ctx, "post validation outcome failed", zap.Error(err))
	}
	return ok, message, nil
}

func (v *Validator) check(ctx context.Context, sub model.Submission, layout workspace.Layout) []string {
	var reasons []string
	if !sub.Mergeable {
		reasons = append(reasons, ReasonNotMergeable)
	}
	if !layout.HasRoot() {
		reasons = append(reasons, ReasonRootMissing(sub.Login))
	}

	if _, err := layout.ReadInfo(); err != nil {
		switch workspace.InfoReason(err) {
		case workspace.InfoMissing:
			reasons = append(reasons, ReasonInfoMissing)
		case workspace.InfoUnreadable:
			reasons = append(reasons, ReasonInfoUnreadable)
		default:
			reasons = append(reasons, ReasonInfoMalformed)
		}
	}
	if !layout.HasEntry() {
		reasons = append(reasons, ReasonEntryMissing)
	}
	if !layout.HasMarker() {
		return append(reasons, ReasonMarkerMissing)
	}

	if err := v.loader.Probe(ctx, layout.Module); err != nil {
		if !appErr.Is(err, appErr.EntryPointLoadFailed) {
			logger.Error(ctx, "import probe did not complete", zap.Error(err))
		}
		reasons = append(reasons, ReasonImportFailed)
	}
	return reasons
}
