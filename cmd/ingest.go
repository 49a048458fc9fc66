package cmd

import (
	"time"

	"github.com/jaffee/commandeer"
	"github.com/pilosa/mdk"
	"github.com/spf13/cobra"
)

// runner is a Main of one of the ingest packages.
type runner interface {
	Run() error
	Log() mdk.Logger
}

// newIngestCommand derives the flags of a command from the fields of m and
// logs the run time when it succeeds.
func newIngestCommand(m runner, use, short, long string) *cobra.Command {
	com := &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			if err := m.Run(); err != nil {
				return err
			}
			m.Log().Printf("Done: %v", time.Since(start))
			return nil
		},
	}
	if err := commandeer.Flags(com.Flags(), m); err != nil {
		panic(err)
	}
	return com
}
