package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/marmos91/mailidx/pkg/mailindex"
	"github.com/spf13/cobra"
)

var headerCmd = &cobra.Command{
	Use:   "header",
	Short: "Print the index header",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		idx, err := openReadOnly(ctx)
		if err != nil {
			return err
		}
		defer closeReadOnly(ctx, idx)

		hv, err := idx.Header(ctx)
		if err != nil {
			return fmt.Errorf("read header: %w", err)
		}
		hdr, err := hv.Get()
		if err != nil {
			return fmt.Errorf("read header: %w", err)
		}

		slots, err := idx.RecordCount(ctx)
		if err != nil {
			return fmt.Errorf("read record count: %w", err)
		}

		p, err := printer()
		if err != nil {
			return err
		}
		return p.Print(headerReport{Header: hdr, RecordSlots: slots})
	},
}

// headerReport wraps a mailindex.Header so it can render itself both as a
// key-value table and, via direct field access, as JSON/YAML.
type headerReport struct {
	mailindex.Header
	RecordSlots uint32 `json:"record_slots" yaml:"record_slots"`
}

func (r headerReport) Headers() []string {
	return []string{"FIELD", "VALUE"}
}

func (r headerReport) Rows() [][]string {
	h := r.Header
	return [][]string{
		{"version", strconv.FormatUint(uint64(h.Version), 10)},
		{"record_slots", strconv.FormatUint(uint64(r.RecordSlots), 10)},
		{"index_id", strconv.FormatUint(uint64(h.IndexID), 10)},
		{"flags", flagNames(h.Flags)},
		{"cache_fields", cacheFieldNames(h.CacheFields)},
		{"uid_validity", strconv.FormatUint(uint64(h.UIDValidity), 10)},
		{"next_uid", strconv.FormatUint(uint64(h.NextUID), 10)},
		{"last_nonrecent_uid", strconv.FormatUint(uint64(h.LastNonrecentUID), 10)},
		{"messages_count", strconv.FormatUint(uint64(h.MessagesCount), 10)},
		{"seen_messages_count", strconv.FormatUint(uint64(h.SeenMessagesCount), 10)},
		{"deleted_messages_count", strconv.FormatUint(uint64(h.DeletedMessagesCount), 10)},
		{"first_unseen_uid_lowwater", strconv.FormatUint(uint64(h.FirstUnseenUIDLowwater), 10)},
		{"first_deleted_uid_lowwater", strconv.FormatUint(uint64(h.FirstDeletedUIDLowwater), 10)},
		{"first_hole_position", strconv.FormatUint(h.FirstHolePosition, 10)},
		{"first_hole_records", strconv.FormatUint(uint64(h.FirstHoleRecords), 10)},
	}
}

func flagNames(flags uint32) string {
	if flags == 0 {
		return "-"
	}
	names := []struct {
		bit  uint32
		name string
	}{
		{mailindex.FlagRebuild, "REBUILD"},
		{mailindex.FlagFSCK, "FSCK"},
		{mailindex.FlagCompress, "COMPRESS"},
		{mailindex.FlagRebuildHash, "REBUILD_HASH"},
		{mailindex.FlagCacheFields, "CACHE_FIELDS"},
		{mailindex.FlagCompressData, "COMPRESS_DATA"},
	}
	out := ""
	for _, n := range names {
		if flags&n.bit != 0 {
			if out != "" {
				out += "|"
			}
			out += n.name
		}
	}
	if out == "" {
		return fmt.Sprintf("0x%x", flags)
	}
	return out
}

func cacheFieldNames(fields uint32) string {
	if fields == 0 {
		return "-"
	}
	names := []struct {
		bit  uint32
		name string
	}{
		{mailindex.CacheEnvelope, "ENVELOPE"},
		{mailindex.CacheBodyStructure, "BODYSTRUCTURE"},
		{mailindex.CacheReceivedDate, "RECEIVED_DATE"},
		{mailindex.CacheSentDate, "SENT_DATE"},
		{mailindex.CacheMessageSize, "MESSAGE_SIZE"},
	}
	out := ""
	for _, n := range names {
		if fields&n.bit != 0 {
			if out != "" {
				out += "|"
			}
			out += n.name
		}
	}
	if out == "" {
		return fmt.Sprintf("0x%x", fields)
	}
	return out
}
