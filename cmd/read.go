package cmd

import (
	c "i2cflash/internal"
	"i2cflash/internal/util"

	"fmt"

	"github.com/cespare/xxhash"
	"github.com/spf13/cobra"
)

// seek moves the cursor unless page is negative (stay where it is).
func seek(s *session, page int) error {
	if page < 0 {
		return nil
	}
	return s.SetPointer(uint32(page))
}

func newReadCmd(o *options) *cobra.Command {
	var page, pages int
	var raw bool

	cmd := &cobra.Command{
		Use:	"read",
		Short:	"Read pages at the cursor and dump them",
		Args:	cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if pages < 0 || pages > c.PAGE_COUNT {
				return fmt.Errorf("pages must be between 0 and %d", c.PAGE_COUNT)
			}
			s, err := o.open()
			if err != nil {
				return err
			}
			defer s.close()

			if err := seek(s, page); err != nil {
				return err
			}
			first := s.Pointer()

			dst := make([]byte, pages*c.PAGE_SIZE)
			n, err := s.readPages(cmd.Context(), dst, uint32(pages))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if raw {
				_, err = out.Write(dst[:n])
				return err
			}
			_, err = fmt.Fprint(out, util.PrettyPrintPage(dst[:n], first))
			return err
		},
	}

	cmd.Flags().IntVarP(&page, "page", "p", -1, "move the cursor here first")
	cmd.Flags().IntVarP(&pages, "pages", "n", 1, "number of pages")
	cmd.Flags().BoolVar(&raw, "raw", false, "write the bytes instead of a hex dump")
	return cmd
}

func newDigestCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:	"digest",
		Short:	"Read the whole device and print its xxhash64",
		Args:	cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := o.open()
			if err != nil {
				return err
			}
			defer s.close()

			if err := s.SetPointer(0); err != nil {
				return err
			}
			img := make([]byte, c.DEVICE_SIZE)
			n, err := s.readPages(cmd.Context(), img, c.PAGE_COUNT)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%016x\n", xxhash.Sum64(img[:n]))
			return err
		},
	}
}
