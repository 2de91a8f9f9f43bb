package commands

import (
	"context"
	"fmt"

	"github.com/marmos91/mailidx/pkg/mailindex"
)

// openReadOnly opens the index at Flags.Dir/Flags.Prefix and then takes
// SHARED. mailindex.Open itself takes EXCLUSIVE while it runs pending
// recovery, and writes the header when it releases that lock. No
// collaborators are wired: midxctl only reads the header and record
// array, neither of which touches the data file, hash store, or modify
// log.
func openReadOnly(ctx context.Context) (*mailindex.Index, error) {
	idx, err := mailindex.Open(ctx, mailindex.Options{
		Dir:    Flags.Dir,
		Prefix: Flags.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	if err := idx.SetLock(ctx, mailindex.Shared); err != nil {
		idx.Close()
		return nil, fmt.Errorf("acquire shared lock: %w", err)
	}

	return idx, nil
}

func closeReadOnly(ctx context.Context, idx *mailindex.Index) {
	idx.SetLock(ctx, mailindex.Unlocked)
	idx.Close()
}
