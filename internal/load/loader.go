// Copyright 2023 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package load implements the ChangeLoader described in §4.4: the
// subsystem that applies one merged LoadTask to the analytic target in
// a single transaction, using bulk COPY rather than row-at-a-time DML.
package load

import (
	"time"

	"github.com/DBAShand/cdc-sink-redshift/internal/metrics"
	"github.com/DBAShand/cdc-sink-redshift/internal/stopper"
	"github.com/DBAShand/cdc-sink-redshift/internal/targetpool"
	"github.com/DBAShand/cdc-sink-redshift/internal/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// loadMode is the ChangeLoader's two-state apply strategy. It is
// single-writer — only the one goroutine driving this loader's Apply
// calls ever reads or writes it — so a plain field suffices; no atomic
// or mutex is needed.
type loadMode int

const (
	optimistic loadMode = iota
	pessimistic
)

func (m loadMode) String() string {
	if m == pessimistic {
		return "pessimistic"
	}
	return "optimistic"
}

// ChangeLoader applies LoadTasks for one target table, one at a time,
// using the connection it borrows from Pool for the duration of each
// task.
type ChangeLoader struct {
	Pipeline            string
	Meta                types.TableMeta
	Pool                *targetpool.Pool
	SlowDeleteThreshold time.Duration

	mode loadMode
}

// NewChangeLoader returns a loader starting in optimistic mode, the
// steady-state assumption per §4.4: most changes target keys the
// target doesn't already hold.
func NewChangeLoader(pipeline string, meta types.TableMeta, pool *targetpool.Pool, slowDeleteThreshold time.Duration) *ChangeLoader {
	return &ChangeLoader{
		Pipeline:            pipeline,
		Meta:                meta,
		Pool:                pool,
		SlowDeleteThreshold: slowDeleteThreshold,
		mode:                optimistic,
	}
}

// Apply runs the full apply protocol for task: ensure temp table,
// delete phase, insert phase, commit and fire callbacks, release
// connection. A connection that survives its task is returned to the
// pool; one that fails any step is dropped, per §4.5.
func (l *ChangeLoader) Apply(ctx *stopper.Context, task *types.LoadTask) error {
	if task.Empty() && len(task.Callbacks) == 0 {
		return nil
	}

	start := time.Now()
	conn, err := l.Pool.Borrow(ctx)
	if err != nil {
		return errors.Wrap(err, "load: borrowing connection")
	}

	if err := l.applyWithConn(ctx, conn, task); err != nil {
		metrics.LoadErrors.WithLabelValues(l.Meta.Table.Raw(), errKind(err)).Inc()
		l.Pool.Drop(ctx, conn)
		log.WithError(err).WithFields(log.Fields{
			"pipeline": l.Pipeline,
			"table":    l.Meta.Table.Raw(),
			"task":     task.ID,
		}).Error("load: apply failed")
		return err
	}

	l.Pool.Return(conn)
	metrics.LoadDurations.WithLabelValues(l.Meta.Table.Raw()).Observe(time.Since(start).Seconds())
	log.WithFields(log.Fields{
		"pipeline": l.Pipeline,
		"table":    l.Meta.Table.Raw(),
		"task":     task.ID,
		"inserted": len(task.Insert),
		"deleted":  len(task.Delete),
	}).Debug("load: task applied")
	return nil
}

func errKind(err error) string {
	var le *types.LoadError
	if errors.As(err, &le) {
		return le.Kind.String()
	}
	return "unknown"
}

// applyWithConn runs steps 1-5 of §4.4 against one borrowed connection.
// It attempts the task at most twice: once in the loader's current
// mode, and once more forced into pessimistic mode if the first
// attempt's insert phase collides on a duplicate key while optimistic.
func (l *ChangeLoader) applyWithConn(ctx *stopper.Context, conn *targetpool.BorrowedConn, task *types.LoadTask) error {
	table := l.Meta.Table

	if err := l.ensureTempTable(ctx, conn); err != nil {
		return err
	}
	tempName := tempTableName(table)

	tx, err := conn.Begin(ctx)
	if err != nil {
		return types.NewLoadError(types.CommitFailed, table, errors.Wrap(err, "beginning transaction"))
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	forcedPessimistic := l.mode == pessimistic
	for attempt := 0; attempt < 2; attempt++ {
		pessimisticThisAttempt := forcedPessimistic || l.mode == pessimistic
		deleteKeys := l.buildDeleteKeys(task, pessimisticThisAttempt)

		var affected int64
		if len(deleteKeys) > 0 || pessimisticThisAttempt {
			affected, err = l.deletePhase(ctx, tx.Conn(), tempName, deleteKeys)
			if err != nil {
				return err
			}
		}

		err = l.insertPhase(ctx, tx.Conn(), task)
		if err != nil {
			if types.IsDuplicateKey(err) && !pessimisticThisAttempt {
				if rbErr := tx.Rollback(ctx); rbErr != nil {
					return types.NewLoadError(types.CommitFailed, table, errors.Wrap(rbErr, "rolling back before pessimistic retry"))
				}
				l.mode = pessimistic
				forcedPessimistic = true
				metrics.LoadModeFlips.WithLabelValues(table.Raw(), pessimistic.String()).Inc()
				log.WithFields(log.Fields{"pipeline": l.Pipeline, "table": table.Raw()}).
					Warn("load: duplicate key while optimistic, retrying pessimistically")

				tx, err = conn.Begin(ctx)
				if err != nil {
					return types.NewLoadError(types.CommitFailed, table, errors.Wrap(err, "beginning retry transaction"))
				}
				continue
			}
			return err
		}

		if pessimisticThisAttempt && affected == int64(len(deleteKeys)) {
			l.mode = optimistic
			metrics.LoadModeFlips.WithLabelValues(table.Raw(), optimistic.String()).Inc()
			log.WithFields(log.Fields{"pipeline": l.Pipeline, "table": table.Raw()}).
				Debug("load: delete phase matched every targeted key, reverting to optimistic mode")
		}

		if err := tx.Commit(ctx); err != nil {
			return types.NewLoadError(types.CommitFailed, table, err)
		}
		committed = true

		task.FireCallbacks()
		metrics.LoadRowsInserted.WithLabelValues(table.Raw()).Add(float64(len(task.Insert)))
		metrics.LoadRowsDeleted.WithLabelValues(table.Raw()).Add(float64(affected))
		return nil
	}

	return types.NewLoadError(types.DuplicateKey, table,
		errors.New("duplicate key persisted after pessimistic retry"))
}

// buildDeleteKeys copies task.Delete into a fresh map so retries never
// mutate the task itself, unioning in every insert key when running
// pessimistically, per §4.4 step 2's "in pessimistic mode, union
// insert.keys() into delete before the delete phase."
func (l *ChangeLoader) buildDeleteKeys(task *types.LoadTask, pessimisticThisAttempt bool) map[string]struct{} {
	keys := make(map[string]struct{}, len(task.Delete))
	for k := range task.Delete {
		keys[k] = struct{}{}
	}
	if pessimisticThisAttempt {
		for k := range task.Insert {
			keys[k] = struct{}{}
		}
	}
	return keys
}

// ensureTempTable creates the scratch temp table for this loader's
// table on conn if it hasn't already been created on this physical
// connection. It runs outside any explicit transaction: CREATE TEMP
// TABLE ... ON COMMIT DELETE ROWS needs its own commit boundary before
// the task's transaction begins.
func (l *ChangeLoader) ensureTempTable(ctx *stopper.Context, conn *targetpool.BorrowedConn) error {
	tempName := tempTableName(l.Meta.Table)
	if conn.HasTempTable(tempName) {
		return nil
	}
	sql := ensureTempTableSQL(l.Meta.Table, l.Meta.KeyColumns, tempName)
	if _, err := conn.Exec(ctx, sql); err != nil {
		return types.NewLoadError(types.CommitFailed, l.Meta.Table, errors.Wrap(err, "creating temp table"))
	}
	conn.MarkTempTableCreated(tempName)
	return nil
}

// deletePhase copies the given keys into the scratch temp table, then
// deletes every matching row from the target. It captures an EXPLAIN
// plan for the delete, logged rather than returned, if the delete takes
// longer than SlowDeleteThreshold — a diagnostic aid, not a correctness
// signal, per §4.4 step 2c.
func (l *ChangeLoader) deletePhase(ctx *stopper.Context, conn *pgx.Conn, tempName string, keys map[string]struct{}) (int64, error) {
	lines := make([]string, 0, len(keys))
	for k := range keys {
		lines = append(lines, k)
	}

	copySQL := copyTempKeysSQL(tempName, l.Meta.KeyColumns)
	outcome := streamCopy(ctx, conn.PgConn(), copySQL, lines)
	if outcome.consumerErr != nil {
		return 0, types.NewLoadError(types.CopyIO, l.Meta.Table, errors.Wrap(outcome.consumerErr, "copying keys into temp table"))
	}
	if outcome.producerErr != nil {
		return 0, types.NewLoadError(types.PipeIO, l.Meta.Table, errors.Wrap(outcome.producerErr, "encoding keys into temp table"))
	}

	deleteStart := time.Now()
	tag, err := conn.Exec(ctx, deleteWhereExistsSQL(l.Meta.Table, l.Meta.KeyColumns, tempName))
	if err != nil {
		return 0, types.NewLoadError(types.CopyIO, l.Meta.Table, errors.Wrap(err, "deleting matched rows"))
	}
	if elapsed := time.Since(deleteStart); elapsed > l.SlowDeleteThreshold && l.SlowDeleteThreshold > 0 {
		l.captureSlowDeleteExplain(ctx, conn, tempName, elapsed)
	}

	return tag.RowsAffected(), nil
}

func (l *ChangeLoader) captureSlowDeleteExplain(ctx *stopper.Context, conn *pgx.Conn, tempName string, elapsed time.Duration) {
	rows, err := conn.Query(ctx, explainDeleteSQL(l.Meta.Table, l.Meta.KeyColumns, tempName))
	if err != nil {
		log.WithError(err).WithField("table", l.Meta.Table.Raw()).Debug("load: explain capture on slow delete failed")
		return
	}
	defer rows.Close()

	var plan []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err == nil {
			plan = append(plan, line)
		}
	}
	if len(plan) == 0 {
		return
	}
	log.WithFields(log.Fields{
		"pipeline": l.Pipeline,
		"table":    l.Meta.Table.Raw(),
		"elapsed":  elapsed,
		"plan":     plan,
	}).Warn("load: slow delete phase")
}

// insertPhase COPYs every entry of task.Insert into the target. A
// unique-violation from the target is translated into a LoadError with
// Kind DuplicateKey so applyWithConn can decide whether to retry
// pessimistically.
func (l *ChangeLoader) insertPhase(ctx *stopper.Context, conn *pgx.Conn, task *types.LoadTask) error {
	lines := make([]string, 0, len(task.Insert))
	for _, tuple := range task.Insert {
		lines = append(lines, tuple)
	}
	if len(lines) == 0 {
		return nil
	}

	copySQL := copyTargetSQL(l.Meta.Table, l.Meta.Columns)
	outcome := streamCopy(ctx, conn.PgConn(), copySQL, lines)
	if outcome.consumerErr != nil {
		if isDuplicateKeyPgError(outcome.consumerErr) {
			return types.NewLoadError(types.DuplicateKey, l.Meta.Table, outcome.consumerErr)
		}
		return types.NewLoadError(types.CopyIO, l.Meta.Table, errors.Wrap(outcome.consumerErr, "copying rows into target"))
	}
	if outcome.producerErr != nil {
		return types.NewLoadError(types.PipeIO, l.Meta.Table, errors.Wrap(outcome.producerErr, "encoding rows into target"))
	}
	return nil
}

// isDuplicateKeyPgError reports whether err is a Postgres-protocol
// unique_violation (SQLSTATE 23505), the signal §4.4 step 3 uses to
// trigger the optimistic-to-pessimistic mode flip.
func isDuplicateKeyPgError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
