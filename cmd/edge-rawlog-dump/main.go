package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"

	"edge-viewer-go/internal/codec"
	"edge-viewer-go/internal/output"
)

func main() {
	var (
		path  = flag.String("path", "", "Path to rawlog .bin file")
		limit = flag.Int("limit", 1, "Number of records to dump (0 = all)")
	)
	flag.Parse()

	if *path == "" {
		log.Fatal("path is required")
	}

	f, err := os.Open(*path)
	if err != nil {
		log.Fatalf("open rawlog: %v", err)
	}
	defer f.Close()

	reader, err := output.NewRawLogReader(f)
	if err != nil {
		log.Fatalf("open rawlog: %v", err)
	}

	for count := 0; *limit <= 0 || count < *limit; count++ {
		record, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			log.Fatalf("read record: %v", err)
		}
		if len(record.Payload) == 0 {
			log.Printf("record %d: empty payload", count)
			continue
		}

		decoded, format, err := decodePayload(record.Payload)
		if err != nil {
			log.Printf("record %d: decode error: %v", count, err)
			continue
		}

		normalized := output.NormalizeJSONValue(decoded)
		pretty, err := json.MarshalIndent(normalized, "", "  ")
		if err != nil {
			log.Printf("record %d: JSON encode error: %v", count, err)
			continue
		}

		log.Printf("record %d timestamp=%s size=%d format=%s image=%s",
			count, record.Time.Format(time.RFC3339Nano), len(record.Payload), format, imageSize(decoded))
		fmt.Println(string(pretty))
	}
}

// decodePayload accepts both CBOR (zmq) and JSON (mqtt) records.
func decodePayload(payload []byte) (any, string, error) {
	var decoded any
	cborErr := cbor.Unmarshal(payload, &decoded)
	if cborErr == nil {
		return decoded, "cbor", nil
	}
	if err := json.Unmarshal(payload, &decoded); err == nil {
		return decoded, "json", nil
	}
	return nil, "", cborErr
}

func imageSize(decoded any) string {
	var image any
	switch m := decoded.(type) {
	case map[any]any:
		image = m["image"]
	case map[string]any:
		image = m["image"]
	}
	var payload string
	switch v := image.(type) {
	case string:
		payload = v
	case []byte:
		payload = codec.ArrayBufferToBase64(v)
	default:
		return "-"
	}
	img, err := codec.DecodeImage(payload)
	if err != nil {
		return "undecodable"
	}
	b := img.Bounds()
	return fmt.Sprintf("%dx%d", b.Dx(), b.Dy())
}
