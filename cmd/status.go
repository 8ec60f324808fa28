package cmd

import (
	c "i2cflash/internal"
	"i2cflash/internal/xfer"

	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newStatusCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:	"status",
		Short:	"Show whether the engine can take a request",
		Args:	cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := o.open()
			if err != nil {
				return err
			}
			defer s.close()

			ready := "ready"
			if err := s.Status(); errors.Is(err, xfer.ErrBusy) {
				ready = "busy"
			} else if err != nil {
				return err
			}
			st := s.Stats()
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s state=%s cursor=%d requests=%d faults=%d\n",
				ready, s.Kind(), s.Pointer(), st.Requests, st.Faults)
			return err
		},
	}
}

func newPointerCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:	"pointer [page]",
		Short:	"Print the cursor page, or move it",
		Args:	cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := o.open()
			if err != nil {
				return err
			}
			defer s.close()

			if len(args) == 1 {
				page, err := strconv.ParseUint(args[0], 0, 32)
				if err != nil {
					return fmt.Errorf("page %q: %w", args[0], xfer.ErrInvalidArg)
				}
				if err := s.SetPointer(uint32(page)); err != nil {
					return fmt.Errorf("page %d (device has %d): %w", page, c.PAGE_COUNT, err)
				}
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), s.Pointer())
			return err
		},
	}
}
