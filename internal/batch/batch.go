// Package batch creates groups of jobs from CSV.
package batch

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/jonathan/longform-writer/internal/types"
)

// Columns is the CSV column order. Only topic is required; a header row is optional.
var Columns = []string{"topic", "target_length", "author_voice", "notes", "offer", "auto_enhance"}

// MaxRows bounds a single batch.
const MaxRows = 500

// JobCreator is the store method a batch needs.
type JobCreator interface {
	CreateJob(ctx context.Context, in types.JobInput) (int64, error)
}

// Result is a created batch.
type Result struct {
	BatchID string  `json:"batch_id"`
	JobIDs  []int64 `json:"job_ids"`
}

// Parse reads job inputs from CSV. Blank lines are skipped; every other row is
// validated and errors name the 1-based line.
func Parse(r io.Reader) ([]types.JobInput, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var out []types.JobInput
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "malformed csv")
		}
		if line == 1 && len(rec) > 0 && strings.EqualFold(strings.TrimSpace(rec[0]), "topic") {
			continue
		}
		if blank(rec) {
			continue
		}
		in, err := parseRow(rec)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		if err := in.Validate(); err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		out = append(out, in)
		if len(out) > MaxRows {
			return nil, errors.Newf("batch exceeds %d rows", MaxRows)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("batch has no rows")
	}
	return out, nil
}

func parseRow(rec []string) (types.JobInput, error) {
	if len(rec) > len(Columns) {
		return types.JobInput{}, errors.Newf("expected at most %d columns, got %d", len(Columns), len(rec))
	}
	col := func(i int) string {
		if i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}

	in := types.JobInput{
		Topic:       col(0),
		AuthorVoice: col(2),
		Notes:       col(3),
		Offer:       col(4),
	}
	if v := col(1); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return in, errors.Newf("target_length %q is not a number", v)
		}
		in.TargetLength = n
	}
	if v := col(5); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return in, errors.Newf("auto_enhance %q is not a boolean", v)
		}
		in.AutoEnhance = b
	}
	return in, nil
}

func blank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// Create stores every input as a pending job under a fresh batch id. Jobs already
// created stay in place if a later insert fails; the error carries the partial result.
func Create(ctx context.Context, store JobCreator, inputs []types.JobInput, defaultTarget int) (Result, error) {
	res := Result{BatchID: uuid.NewString(), JobIDs: make([]int64, 0, len(inputs))}
	for i, in := range inputs {
		in = in.WithDefaults(defaultTarget)
		in.BatchID = &res.BatchID
		id, err := store.CreateJob(ctx, in)
		if err != nil {
			return res, errors.Wrapf(err, "row %d", i+1)
		}
		res.JobIDs = append(res.JobIDs, id)
	}
	return res, nil
}
