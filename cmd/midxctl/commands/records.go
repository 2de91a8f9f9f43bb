package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/marmos91/mailidx/pkg/mailindex"
	"github.com/spf13/cobra"
)

var recordsLimit int

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List live records in sequence order",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		idx, err := openReadOnly(ctx)
		if err != nil {
			return err
		}
		defer closeReadOnly(ctx, idx)

		rows, err := collectRecords(ctx, idx, recordsLimit)
		if err != nil {
			return err
		}

		p, err := printer()
		if err != nil {
			return err
		}
		return p.Print(recordReport(rows))
	},
}

func init() {
	recordsCmd.Flags().IntVar(&recordsLimit, "limit", 100, "maximum number of records to list (0 for no limit)")
}

type recordRow struct {
	Seq          uint32 `json:"seq" yaml:"seq"`
	UID          uint32 `json:"uid" yaml:"uid"`
	Flags        uint32 `json:"flags" yaml:"flags"`
	CachedFields uint32 `json:"cached_fields" yaml:"cached_fields"`
}

func collectRecords(ctx context.Context, idx *mailindex.Index, limit int) ([]recordRow, error) {
	var rows []recordRow

	v, err := idx.Lookup(ctx, 1)
	for err == nil {
		rec, gerr := v.Get()
		if gerr != nil {
			return nil, gerr
		}
		rows = append(rows, recordRow{
			Seq:          v.Seq(),
			UID:          rec.UID,
			Flags:        rec.MsgFlags,
			CachedFields: rec.CachedFields,
		})
		if limit > 0 && len(rows) >= limit {
			return rows, nil
		}
		v, err = idx.Next(ctx, v)
	}

	if errors.Is(err, mailindex.ErrNotFound) {
		return rows, nil
	}
	return nil, err
}

type recordReport []recordRow

func (r recordReport) Headers() []string {
	return []string{"SEQ", "UID", "FLAGS", "CACHED_FIELDS"}
}

func (r recordReport) Rows() [][]string {
	out := make([][]string, 0, len(r))
	for _, row := range r {
		out = append(out, []string{
			strconv.FormatUint(uint64(row.Seq), 10),
			strconv.FormatUint(uint64(row.UID), 10),
			fmt.Sprintf("0x%x", row.Flags),
			cacheFieldNames(row.CachedFields),
		})
	}
	return out
}
