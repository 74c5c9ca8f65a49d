package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
)

// PromptForText asks the user for one line of text on stdin. Returns
// fallback if the user enters nothing or input cannot be read.
func PromptForText(label, fallback string) string {
	return promptFrom(os.Stdin, os.Stdout, label, fallback)
}

func promptFrom(in io.Reader, out io.Writer, label, fallback string) string {
	if fallback != "" {
		fmt.Fprintf(out, "%s [%s]: ", label, fallback)
	} else {
		fmt.Fprintf(out, "%s: ", label)
	}

	reader := bufio.NewReader(in)
	input, err := reader.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || input == "") {
		log.Warn().Err(err).Msg("Failed to read input, using default")
		return fallback
	}

	input = strings.TrimSpace(input)
	if input == "" {
		return fallback
	}
	return input
}
