package main

import "i2cflash/cmd"

func main() {
	cmd.Execute()
}
