// Command convert runs the production converters offline: it reads a payload
// from stdin and writes the converted form to stdout. Useful for debugging
// captured traffic without a running server.
//
// Modes:
//
//	-mode request   Anthropic Messages request JSON → OpenAI request JSON
//	-mode response  OpenAI Chat Completions response JSON → Anthropic response JSON
//	-mode stream    OpenAI SSE transcript → Anthropic SSE transcript
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/foxmn/anthropic_bridge/internal/converter"
	"github.com/foxmn/anthropic_bridge/internal/converter/anthropic"
	"github.com/foxmn/anthropic_bridge/internal/converter/openai"
	"github.com/foxmn/anthropic_bridge/internal/logger"
)

func main() {
	mode := flag.String("mode", "request", "Conversion mode: request, response, or stream")
	model := flag.String("model", "gpt-4o", "Upstream model name substituted into converted requests")
	level := flag.String("log-level", "error", "Logging level")
	flag.Parse()

	log := logger.New(*level)

	var err error
	switch *mode {
	case "request":
		err = convertRequest(os.Stdin, os.Stdout, *model)
	case "response":
		err = convertResponse(os.Stdin, os.Stdout)
	case "stream":
		err = converter.TransformOpenAIStreamToAnthropic(os.Stdin, os.Stdout, log)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "convert:", err)
		os.Exit(1)
	}
}

func convertRequest(in io.Reader, out io.Writer, model string) error {
	body, err := io.ReadAll(in)
	if err != nil {
		return err
	}
	req, verr := anthropic.ValidateRequest(body)
	if verr != nil {
		return verr
	}
	return writeJSON(out, converter.AnthropicToOpenAIRequest(req, model))
}

func convertResponse(in io.Reader, out io.Writer) error {
	body, err := io.ReadAll(in)
	if err != nil {
		return err
	}
	var resp openai.OpenAIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("failed to parse OpenAI response: %w", err)
	}
	converted, err := converter.OpenAIToAnthropicResponse(&resp)
	if err != nil {
		return err
	}
	return writeJSON(out, converted)
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
