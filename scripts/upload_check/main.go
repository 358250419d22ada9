package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
)

// Posts one image to a device upload endpoint and prints the response.
func main() {
	baseURL := flag.String("url", "http://localhost:8080", "server base URL")
	deviceID := flag.Uint("device", 1, "device id")
	file := flag.String("file", "public/marker-icon-2x.png", "image to upload")
	title := flag.String("title", "Test Image", "image title")
	content := flag.String("content", "Test upload", "image content")
	plate := flag.String("plate", "", "license plate")
	flag.Parse()

	client := resty.New().
		SetBaseURL(*baseURL).
		SetTimeout(30 * time.Second)

	form := map[string]string{
		"title":   *title,
		"content": *content,
	}
	if *plate != "" {
		form["licensePlate"] = *plate
	}

	resp, err := client.R().
		SetFile("file", *file).
		SetFormData(form).
		Post(fmt.Sprintf("/api/devices/%d/upload", *deviceID))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Upload error: %v\n", err)
		os.Exit(1)
	}

	if resp.IsError() {
		fmt.Fprintf(os.Stderr, "Upload error (%d): %s\n", resp.StatusCode(), resp.String())
		os.Exit(1)
	}
	fmt.Printf("Upload response (%d): %s\n", resp.StatusCode(), resp.String())
}
