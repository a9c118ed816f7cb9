package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"pushgateway/internal/model"
)

// ErrAccountNotFound is returned when no account exists for an identifier.
var ErrAccountNotFound = errors.New("account not found")

// ErrDeviceNotFound is returned when an account has no device with the
// requested ID.
var ErrDeviceNotFound = errors.New("device not found")

type accountRepository struct {
	db *sqlx.DB
}

func NewAccountRepository(db *sqlx.DB) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) GetByAccountIdentifier(ctx context.Context, identifier uuid.UUID) (*model.Account, error) {
	query := `
		SELECT identifier, number, created_at
		FROM accounts
		WHERE identifier = $1
	`
	var account model.Account
	err := r.db.GetContext(ctx, &account, query, identifier)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}

	devices, err := r.devicesForAccounts(ctx, []uuid.UUID{identifier})
	if err != nil {
		return nil, err
	}
	account.Devices = devices[identifier]

	return &account, nil
}

// UpdateDevice re-reads the device row inside a transaction, applies the
// mutation to the fresh copy, and writes the token fields and push timestamp
// back in one statement. The row lock serializes concurrent token
// registrations against concurrent invalidations.
func (r *accountRepository) UpdateDevice(ctx context.Context, account *model.Account, deviceID uint8, mutate func(*model.Device)) (*model.Account, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update device: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			log.Printf("[AccountRepository] Rollback failed: %v", err)
		}
	}()

	var device model.Device
	query := `
		SELECT device_id, account_id, gcm_id, apn_id, voip_apn_id, push_timestamp, last_seen, created_at
		FROM devices
		WHERE account_id = $1 AND device_id = $2
		FOR UPDATE
	`
	err = tx.GetContext(ctx, &device, query, account.Identifier, deviceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read device for update: %w", err)
	}

	mutate(&device)

	update := `
		UPDATE devices
		SET gcm_id = $3, apn_id = $4, voip_apn_id = $5, push_timestamp = $6, last_seen = $7
		WHERE account_id = $1 AND device_id = $2
	`
	_, err = tx.ExecContext(ctx, update, account.Identifier, deviceID,
		device.GcmID, device.ApnID, device.VoipApnID, device.PushTimestamp, device.LastSeen)
	if err != nil {
		return nil, fmt.Errorf("update device: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update device: %w", err)
	}

	return r.GetByAccountIdentifier(ctx, account.Identifier)
}

// StreamAll pages through the accounts table in identifier order with keyset
// pagination, loading each page's devices in one query. The channels close
// when the table is exhausted or the context is cancelled.
func (r *accountRepository) StreamAll(ctx context.Context, batchSize int) (<-chan *model.Account, <-chan error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	accounts := make(chan *model.Account)
	errs := make(chan error, 1)

	go func() {
		defer close(accounts)
		defer close(errs)

		var cursor uuid.UUID
		first := true

		for {
			query := `
				SELECT identifier, number, created_at
				FROM accounts
				WHERE $1 OR identifier > $2
				ORDER BY identifier
				LIMIT $3
			`
			var page []model.Account
			if err := r.db.SelectContext(ctx, &page, query, first, cursor, batchSize); err != nil {
				errs <- fmt.Errorf("stream accounts: %w", err)
				return
			}
			if len(page) == 0 {
				return
			}

			identifiers := make([]uuid.UUID, len(page))
			for i := range page {
				identifiers[i] = page[i].Identifier
			}
			devices, err := r.devicesForAccounts(ctx, identifiers)
			if err != nil {
				errs <- err
				return
			}

			for i := range page {
				account := page[i]
				account.Devices = devices[account.Identifier]
				select {
				case accounts <- &account:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			}

			cursor = page[len(page)-1].Identifier
			first = false
		}
	}()

	return accounts, errs
}

func (r *accountRepository) devicesForAccounts(ctx context.Context, identifiers []uuid.UUID) (map[uuid.UUID][]model.Device, error) {
	query := `
		SELECT device_id, account_id, gcm_id, apn_id, voip_apn_id, push_timestamp, last_seen, created_at
		FROM devices
		WHERE account_id = ANY($1)
		ORDER BY account_id, device_id
	`
	ids := make([]string, len(identifiers))
	for i, id := range identifiers {
		ids[i] = id.String()
	}

	var devices []model.Device
	if err := r.db.SelectContext(ctx, &devices, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("get devices: %w", err)
	}

	byAccount := make(map[uuid.UUID][]model.Device, len(identifiers))
	for _, device := range devices {
		byAccount[device.AccountID] = append(byAccount[device.AccountID], device)
	}
	return byAccount, nil
}
