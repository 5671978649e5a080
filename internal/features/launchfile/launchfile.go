package launchfile

// Parsing and validation of uploaded launch JSON files
// A file holds one or more launch definitions; every definition must validate
// before any job is created, so a bad entry rejects the whole upload

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MaxImageBytes bounds the decoded size of an embedded token image.
const MaxImageBytes = 500 * 1024

var validate = validator.New()

// Launch is one token launch definition from an uploaded file.
type Launch struct {
	Name          string            `json:"name" validate:"required,min=1,max=64"`
	Symbol        string            `json:"symbol" validate:"required,min=1,max=16"`
	Description   string            `json:"description" validate:"max=1024"`
	Image         string            `json:"image,omitempty"`
	ExternalLinks map[string]string `json:"external_links,omitempty" validate:"omitempty,dive,keys,min=1,endkeys,url"`
	Chains        []string          `json:"chains" validate:"required,min=1,unique,dive,oneof=arbitrum avalanche base bnb ethereum mantle solana"`
}

// File is the top-level upload shape.
type File struct {
	Launches []Launch `json:"launches" validate:"required,min=1,dive"`
}

// Parse decodes and validates an uploaded launch file. Unknown fields are
// rejected so typos in chain or field names fail loudly instead of silently
// dropping data.
func Parse(data []byte) (*File, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("invalid JSON: trailing data after launch file")
	}

	if err := validate.Struct(&f); err != nil {
		return nil, fmt.Errorf("launch file validation failed: %w", describeValidation(err))
	}

	for i := range f.Launches {
		if err := checkImage(f.Launches[i].Image); err != nil {
			return nil, fmt.Errorf("launch %q: %w", f.Launches[i].Name, err)
		}
	}
	return &f, nil
}

// checkImage verifies an embedded image is valid base64 and within the size
// limit. Data-URL prefixes are tolerated.
func checkImage(image string) error {
	if image == "" {
		return nil
	}
	raw := image
	if i := strings.Index(raw, "base64,"); i >= 0 {
		raw = raw[i+len("base64,"):]
	}
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return fmt.Errorf("image is not valid base64: %w", err)
	}
	if len(decoded) > MaxImageBytes {
		return fmt.Errorf("image exceeds %d KB limit", MaxImageBytes/1024)
	}
	return nil
}

// describeValidation flattens validator errors into one readable message.
func describeValidation(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%s", strings.Join(parts, "; "))
}
