// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressPrinterWritesOneLinePerStage(t *testing.T) {
	var buf bytes.Buffer
	progress := progressPrinter(&buf)
	progress("gather", `searching for evidence on "q"`)
	progress("writer", "writing section 1/2: A")

	assert.Equal(t, "[gather] searching for evidence on \"q\"\n[writer] writing section 1/2: A\n", buf.String())
}
