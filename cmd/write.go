package cmd

import (
	c "i2cflash/internal"

	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// padPages rounds data up to whole pages, filling with the erased value.
func padPages(data []byte) []byte {
	if rem := len(data) % c.PAGE_SIZE; rem != 0 {
		data = append(data, bytes.Repeat([]byte{0xff}, c.PAGE_SIZE-rem)...)
	}
	return data
}

func newWriteCmd(o *options) *cobra.Command {
	var page int

	cmd := &cobra.Command{
		Use:	"write [file]",
		Short:	"Write a file (or stdin) at the cursor, padded to whole pages",
		Args:	cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			data, err := io.ReadAll(io.LimitReader(in, c.DEVICE_SIZE+1))
			if err != nil {
				return err
			}
			if len(data) > c.DEVICE_SIZE {
				return fmt.Errorf("input is larger than the device (%d bytes)", c.DEVICE_SIZE)
			}
			data = padPages(data)
			pages := uint32(len(data) / c.PAGE_SIZE)

			s, err := o.open()
			if err != nil {
				return err
			}
			defer s.close()

			if err := seek(s, page); err != nil {
				return err
			}
			if err := s.Write(data, pages); err != nil {
				return err
			}
			if err := s.settle(cmd.Context()); err != nil {
				return err
			}
			o.log.Info("wrote", "pages", pages, "cursor", s.Pointer())
			return nil
		},
	}

	cmd.Flags().IntVarP(&page, "page", "p", -1, "move the cursor here first")
	return cmd
}

func newEraseCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:	"erase",
		Short:	"Blank the whole device to 0xFF",
		Args:	cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := o.open()
			if err != nil {
				return err
			}
			defer s.close()

			if err := s.Erase(); err != nil {
				return err
			}
			if err := s.settle(cmd.Context()); err != nil {
				return err
			}
			o.log.Info("erased")
			return nil
		},
	}
}
