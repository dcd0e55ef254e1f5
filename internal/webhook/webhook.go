package webhook

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/reviewrelay/reviewrelay/internal/jobs"
	"github.com/reviewrelay/reviewrelay/internal/models"

	log "github.com/sirupsen/logrus"
)

// ErrInvalidToken indicates the presented webhook token did not match.
var ErrInvalidToken = errors.New("webhook: invalid token")

// ErrMalformedPayload indicates the event body could not be parsed.
var ErrMalformedPayload = errors.New("webhook: malformed payload")

// ProviderGitLab identifies the GitLab webhook source.
const ProviderGitLab = "gitlab"

// defaultClass is the scheduling hint attached to intake-created jobs.
const defaultClass = "quick"

// actionableActions are the merge-request actions that trigger a review.
var actionableActions = map[string]bool{
	"open":   true,
	"reopen": true,
	"update": true,
}

// gitlabEvent maps the fields of the GitLab event envelope this service reads.
type gitlabEvent struct {
	ObjectKind       string `json:"object_kind"`
	ObjectAttributes struct {
		Action     string `json:"action"`
		URL        string `json:"url"`
		IID        int64  `json:"iid"`
		LastCommit struct {
			ID string `json:"id"`
		} `json:"last_commit"`
	} `json:"object_attributes"`
	Project struct {
		WebURL string `json:"web_url"`
	} `json:"project"`
}

// Result describes the outcome of handling a webhook delivery. Job is nil when
// the event was valid but not actionable.
type Result struct {
	Job     *models.ReviewJob
	Created bool
}

// Intake authenticates webhook deliveries and turns actionable events into
// queued review jobs.
type Intake struct {
	secret string
	store  *jobs.Store
}

// NewIntake constructs an Intake.
func NewIntake(secret string, store *jobs.Store) *Intake {
	return &Intake{secret: strings.TrimSpace(secret), store: store}
}

// Handle processes one webhook delivery. Authentication failures and malformed
// bodies return errors; valid but irrelevant events return an empty Result so
// the sender gets an acknowledgment and does not retry.
func (i *Intake) Handle(ctx context.Context, body []byte, presentedToken string) (Result, error) {
	if i == nil || i.store == nil {
		return Result{}, fmt.Errorf("webhook: intake not initialized")
	}
	if i.secret == "" {
		// Refuse all deliveries rather than accepting unauthenticated ones.
		return Result{}, ErrInvalidToken
	}
	if subtle.ConstantTimeCompare([]byte(presentedToken), []byte(i.secret)) != 1 {
		return Result{}, ErrInvalidToken
	}

	var evt gitlabEvent
	if errUnmarshal := json.Unmarshal(body, &evt); errUnmarshal != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedPayload, errUnmarshal)
	}

	if evt.ObjectKind != "merge_request" || !actionableActions[evt.ObjectAttributes.Action] {
		return Result{}, nil
	}

	repoURL := strings.TrimSpace(evt.ObjectAttributes.URL)
	if repoURL == "" {
		repoURL = strings.TrimSpace(evt.Project.WebURL)
	}
	if repoURL == "" {
		return Result{}, fmt.Errorf("%w: missing merge request and project url", ErrMalformedPayload)
	}

	meta := jobs.Meta{
		Provider:       ProviderGitLab,
		MergeRequestID: evt.ObjectAttributes.IID,
		Class:          defaultClass,
	}
	key := idempotencyKey(ProviderGitLab, repoURL, evt.ObjectAttributes.IID, evt.ObjectAttributes.Action, evt.ObjectAttributes.LastCommit.ID)

	job, created, errCreate := i.store.Create(ctx, repoURL, meta, key)
	if errCreate != nil {
		return Result{}, errCreate
	}
	if created {
		log.WithFields(log.Fields{"job": job.ID, "repo": repoURL, "mr": evt.ObjectAttributes.IID}).Info("webhook: review job queued")
	} else {
		log.WithFields(log.Fields{"job": job.ID, "repo": repoURL, "mr": evt.ObjectAttributes.IID}).Debug("webhook: duplicate delivery coalesced")
	}
	return Result{Job: &job, Created: created}, nil
}

// idempotencyKey derives a deterministic key for one logical event so repeated
// deliveries coalesce onto a single job. The last-commit SHA distinguishes
// successive updates of the same merge request.
func idempotencyKey(provider, repoURL string, mrID int64, action, revision string) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		provider,
		repoURL,
		strconv.FormatInt(mrID, 10),
		action,
		revision,
	}, "|")))
	return hex.EncodeToString(sum[:])
}
