package syncjob

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/config"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/db"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/erp"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/logger"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/model"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/pkg/errors"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

type recordOutcome int

const (
	outcomeCreated recordOutcome = iota
	outcomeUpdated
	outcomeSkipped
	outcomeError
)

// Engine pulls account records from the ERP in pages, partitions them into
// batches, and upserts each into the local father store. Each record's
// upsert is independent; the sync is not transactional across records.
type Engine struct {
	cfg      *config.Config
	repo     db.Repository
	source   erp.AccountSource
	registry Registry
	log      zerolog.Logger
}

func NewEngine(cfg *config.Config, repo db.Repository, source erp.AccountSource, registry Registry) *Engine {
	return &Engine{
		cfg:      cfg,
		repo:     repo,
		source:   source,
		registry: registry,
		log:      logger.Get(),
	}
}

// SyncAll runs a bulk synchronization. With filters.Background set, the run
// is registered as a job and launched on its own goroutine; the job id
// returns immediately and progress is polled through JobStatus. Otherwise
// the call blocks until completion and returns the aggregate counts.
func (e *Engine) SyncAll(ctx context.Context, filters model.SyncFilters) (*model.MassSyncResult, string, error) {
	if filters.Background {
		job := e.registry.Create()

		go func() {
			// The accept response has already been sent; the run owns its
			// own lifetime.
			runCtx := context.Background()
			if err := e.run(runCtx, job.ID, filters); err != nil {
				e.log.Error().Err(err).Str("job_id", job.ID).Msg("Background sync failed")
			}
		}()

		return nil, job.ID, nil
	}

	job := &model.SyncJob{Status: model.SyncJobStatusPending}
	if err := e.runInto(ctx, job, filters); err != nil {
		return nil, "", err
	}

	return &model.MassSyncResult{
		Total:   job.Total,
		Created: job.Created,
		Updated: job.Updated,
		Skipped: job.Skipped,
		Errors:  job.Errors,
	}, "", nil
}

// JobStatus returns a snapshot of a background job.
func (e *Engine) JobStatus(id string) (*model.SyncJob, error) {
	job, ok := e.registry.Get(id)
	if !ok {
		return nil, errors.ErrJobNotFound
	}
	return job, nil
}

func (e *Engine) run(ctx context.Context, jobID string, filters model.SyncFilters) error {
	return e.runWith(ctx, filters, func(mutate func(*model.SyncJob)) {
		e.registry.Update(jobID, mutate)
	})
}

func (e *Engine) runInto(ctx context.Context, job *model.SyncJob, filters model.SyncFilters) error {
	return e.runWith(ctx, filters, func(mutate func(*model.SyncJob)) {
		mutate(job)
	})
}

// runWith executes the batch loop, applying every counter change through
// track so a concurrent status poll reflects live progress. An error
// escaping the loop marks the job FAILED; progress already counted stays.
func (e *Engine) runWith(ctx context.Context, filters model.SyncFilters, track func(func(*model.SyncJob))) (err error) {
	started := time.Now()
	track(func(j *model.SyncJob) {
		j.Status = model.SyncJobStatusRunning
		j.StartedAt = &started
	})

	defer func() {
		completed := time.Now()
		track(func(j *model.SyncJob) {
			j.CompletedAt = &completed
			if err != nil {
				j.Status = model.SyncJobStatusFailed
				j.ErrorMessage = err.Error()
			} else {
				j.Status = model.SyncJobStatusCompleted
			}
		})
	}()

	records, err := e.fetchAll(ctx, filters)
	if err != nil {
		return err
	}

	batchSize := e.cfg.Sync.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	totalBatches := (len(records) + batchSize - 1) / batchSize

	track(func(j *model.SyncJob) {
		j.Total = len(records)
		j.TotalBatches = totalBatches
	})

	e.log.Info().
		Int("total", len(records)).
		Int("batches", totalBatches).
		Msg("Starting bulk account sync")

	for batchNum := 0; batchNum < totalBatches; batchNum++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		start := batchNum * batchSize
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}

		track(func(j *model.SyncJob) {
			j.CurrentBatch = batchNum + 1
		})

		for _, record := range records[start:end] {
			outcome := e.upsertRecord(ctx, record)
			track(func(j *model.SyncJob) {
				j.Processed++
				switch outcome {
				case outcomeCreated:
					j.Created++
				case outcomeUpdated:
					j.Updated++
				case outcomeSkipped:
					j.Skipped++
				case outcomeError:
					j.Errors++
				}
			})
		}

		// Fixed pause between batches to bound load on the local store.
		if batchNum < totalBatches-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(e.cfg.Sync.BatchPause):
			}
		}
	}

	e.log.Info().Int("total", len(records)).Msg("Bulk account sync completed")

	return nil
}

func (e *Engine) fetchAll(ctx context.Context, filters model.SyncFilters) ([]model.ExternalAccountRecord, error) {
	pageSize := e.cfg.ERP.PartnersPageSize

	var all []model.ExternalAccountRecord
	for skip := 0; ; skip += pageSize {
		page, err := e.source.FetchAccounts(ctx, filters, skip, pageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch accounts page at offset %d: %w", skip, err)
		}

		all = append(all, page...)
		if len(page) < pageSize {
			break
		}
	}

	return all, nil
}

func (e *Engine) upsertRecord(ctx context.Context, record model.ExternalAccountRecord) recordOutcome {
	if record.CardCode == "" {
		return outcomeSkipped
	}

	existing, err := e.repo.GetFatherByCardCode(ctx, record.CardCode)
	if err != nil {
		e.log.Error().Err(err).Str("card_code", record.CardCode).Msg("Lookup failed during upsert")
		return outcomeError
	}

	if existing != nil {
		existing.Name = record.CardName
		existing.Email = optional(record.EmailAddress)
		existing.Phone = optional(record.Phone1)
		existing.Active = record.Active()

		if err := e.repo.UpdateFather(ctx, existing); err != nil {
			e.log.Error().Err(err).Str("card_code", record.CardCode).Msg("Update failed during upsert")
			return outcomeError
		}
		return outcomeUpdated
	}

	father, err := e.createFather(ctx, record)
	if err != nil {
		e.log.Error().Err(err).Str("card_code", record.CardCode).Msg("Create failed during upsert")
		return outcomeError
	}

	e.log.Debug().
		Str("card_code", record.CardCode).
		Str("username", father.Username).
		Msg("Father created from external record")

	return outcomeCreated
}

func (e *Engine) createFather(ctx context.Context, record model.ExternalAccountRecord) (*model.Father, error) {
	username := deriveUsername(record)

	taken, err := e.repo.UsernameExists(ctx, username)
	if err != nil {
		return nil, err
	}

	initialPassword := record.FederalTaxID
	if initialPassword == "" {
		initialPassword = record.CardCode
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(initialPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	father := &model.Father{
		CardCode:     record.CardCode,
		Name:         record.CardName,
		Username:     username,
		PasswordHash: string(hash),
		Email:        optional(record.EmailAddress),
		Phone:        optional(record.Phone1),
		Active:       record.Active(),
	}

	if taken {
		// Reserve a unique interim name, then settle on username+id once
		// the numeric id is known. Existing logins keep their names.
		father.Username = username + "." + strings.ToLower(record.CardCode)
	}

	if err := e.repo.CreateFather(ctx, father); err != nil {
		return nil, err
	}

	if taken {
		resolved := fmt.Sprintf("%s%d", username, father.ID)
		if err := e.repo.UpdateFatherUsername(ctx, father.ID, resolved); err != nil {
			return nil, err
		}
		father.Username = resolved
	}

	return father, nil
}

// deriveUsername builds the initial login name from the record's email local
// part, falling back to the account code.
func deriveUsername(record model.ExternalAccountRecord) string {
	if record.EmailAddress != "" {
		if at := strings.Index(record.EmailAddress, "@"); at > 0 {
			return strings.ToLower(record.EmailAddress[:at])
		}
	}
	return strings.ToLower(record.CardCode)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
