package rhttp

import (
	"io"
	"mime"
	"mime/multipart"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeMultipartWritesFieldsAndFiles(t *testing.T) {
	form := &MultipartForm{
		Fields: map[string]string{"name": "go", "empty": ""},
		Files: []FileUpload{
			{FieldName: "file", FileName: "a.txt", Reader: strings.NewReader("content")},
		},
	}
	encoded, err := encodeMultipart(form)
	require.NoError(t, err)
	assert.Greater(t, encoded.size, int64(0))

	_, params, err := mime.ParseMediaType(encoded.contentType)
	require.NoError(t, err)
	boundary := params["boundary"]

	data, err := io.ReadAll(encoded.reader)
	require.NoError(t, err)

	mr := multipart.NewReader(strings.NewReader(string(data)), boundary)
	seenName, seenFile := false, false
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		switch part.FormName() {
		case "name":
			seenName = true
			v, _ := io.ReadAll(part)
			assert.Equal(t, "go", string(v))
		case "file":
			seenFile = true
			assert.Equal(t, "a.txt", part.FileName())
			v, _ := io.ReadAll(part)
			assert.Equal(t, "content", string(v))
		case "empty":
			t.Fatal("empty-valued field must be omitted")
		}
	}
	assert.True(t, seenName)
	assert.True(t, seenFile)
}

func TestEncodeMultipartSkipsNilFileReader(t *testing.T) {
	form := &MultipartForm{Files: []FileUpload{{FieldName: "f", FileName: "x", Reader: nil}}}
	encoded, err := encodeMultipart(form)
	require.NoError(t, err)
	assert.Greater(t, encoded.size, int64(0)) // still a valid (empty) multipart body
}
