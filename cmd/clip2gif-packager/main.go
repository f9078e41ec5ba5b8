package main

import (
	"github.com/oshokin/clip2gif-packager/cmd/clip2gif-packager/cmd"
)

func main() {
	cmd.Execute()
}
