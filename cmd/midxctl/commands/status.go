package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the index is consistent and ready for use",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		idx, err := openReadOnly(ctx)
		if err != nil {
			return err
		}
		defer closeReadOnly(ctx, idx)

		if idx.IsInconsistent() {
			fmt.Println("INCONSISTENT: rebuild required")
			return nil
		}

		h, err := idx.Header(ctx)
		if err != nil {
			return fmt.Errorf("read header: %w", err)
		}
		hdr, err := h.Get()
		if err != nil {
			return fmt.Errorf("read header: %w", err)
		}

		if hdr.Flags != 0 {
			fmt.Printf("PENDING RECOVERY: flags=0x%x\n", hdr.Flags)
			return nil
		}

		fmt.Println("OK")
		return nil
	},
}
