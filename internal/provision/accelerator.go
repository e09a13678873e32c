// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Accelerator generations.
const (
	AcceleratorStable Accelerator = iota
	AcceleratorExperimental
)

const (
	tensorflowVersion      = "2.12.0"
	tensorflowMacOSVersion = "2.12.0"
	tensorflowMetalVersion = "0.8.0"
	xformersVersion        = "0.0.17"
	tritonWindowsWheel     = "https://huggingface.co/r4ziel/xformers_pre_built/resolve/main/triton-2.0.0-cp310-cp310-win_amd64.whl"
)

type (
	// Accelerator selects which pinned torch build is installed.
	Accelerator int

	torchPins struct {
		torch       string
		torchvision string
		indexURL    string
	}
)

var torchByAccelerator = map[Accelerator]torchPins{ //nolint:gochecknoglobals // fixed pin table
	AcceleratorStable: {
		torch:       "1.12.1+cu116",
		torchvision: "0.13.1+cu116",
		indexURL:    "https://download.pytorch.org/whl/cu116",
	},
	AcceleratorExperimental: {
		torch:       "2.0.0+cu118",
		torchvision: "0.15.1+cu118",
		indexURL:    "https://download.pytorch.org/whl/cu118",
	},
}

// String returns the generation's name.
func (a Accelerator) String() string {
	switch a {
	case AcceleratorStable:
		return "stable"
	case AcceleratorExperimental:
		return "experimental"
	default:
		return fmt.Sprintf("Accelerator(%d)", int(a))
	}
}

func (a Accelerator) pins() torchPins {
	if p, ok := torchByAccelerator[a]; ok {
		return p
	}
	return torchByAccelerator[AcceleratorStable]
}

// ChooseAccelerator asks which torch build to install when interactive,
// repeating until the answer is 1 or 2. Non-interactive runs and closed
// input both select AcceleratorStable.
func ChooseAccelerator(interactive bool, in io.Reader, out io.Writer) Accelerator {
	if !interactive || in == nil {
		return AcceleratorStable
	}
	r := bufio.NewReader(in)
	for {
		fmt.Fprint(out, "Choose Torch version: (1) Stable, (2) Experimental: ")
		line, err := r.ReadString('\n')
		switch strings.TrimSpace(line) {
		case "1":
			return AcceleratorStable
		case "2":
			return AcceleratorExperimental
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				fmt.Fprintln(out)
			}
			return AcceleratorStable
		}
		fmt.Fprintln(out, "Invalid choice. Please enter 1 for Stable or 2 for Experimental.")
	}
}
