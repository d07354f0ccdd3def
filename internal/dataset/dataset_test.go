package dataset

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPresetsListsSixLiteralsInFormOrder(t *testing.T) {
	t.Parallel()

	got := Presets()
	want := []Preset{"MNIST", "KMNIST", "FashionMNIST", "CIFAR10", "CIFAR100", "Other"}
	require.Equal(t, want, got)

	got[0] = "mutated"
	require.Equal(t, PresetMNIST, Presets()[0], "Presets must return a copy")
}

func TestParsePreset(t *testing.T) {
	t.Parallel()

	p, err := ParsePreset("FashionMNIST")
	require.NoError(t, err)
	require.Equal(t, PresetFashionMNIST, p)

	_, err = ParsePreset("fashionmnist")
	require.ErrorIs(t, err, ErrUnknownPreset)

	_, err = ParsePreset("ImageNet")
	require.ErrorIs(t, err, ErrUnknownPreset)

	_, err = ParsePreset(" MNIST ")
	require.ErrorIs(t, err, ErrUnknownPreset)
}

func TestPresetLabel(t *testing.T) {
	t.Parallel()

	require.Equal(t, "CIFAR100 dataset", PresetCIFAR100.Label())
}

func TestSelectionKeepsOnlyLastPreset(t *testing.T) {
	t.Parallel()

	var sel Selection
	require.NoError(t, sel.SelectPreset(PresetMNIST))
	require.NoError(t, sel.SelectPreset(PresetCIFAR10))

	got, ok := sel.Preset()
	require.True(t, ok)
	require.Equal(t, PresetCIFAR10, got)
	require.Equal(t, PresetCIFAR10, sel.Request().Dataset)

	sel.ClearPreset()
	_, ok = sel.Preset()
	require.False(t, ok)
}

func TestSelectionRejectsUnknownPreset(t *testing.T) {
	t.Parallel()

	var sel Selection
	require.NoError(t, sel.SelectPreset(PresetKMNIST))
	err := sel.SelectPreset("SVHN")
	require.ErrorIs(t, err, ErrUnknownPreset)

	got, _ := sel.Preset()
	require.Equal(t, PresetKMNIST, got, "failed selection must not change state")
}

func TestSelectionUploadIsCopied(t *testing.T) {
	t.Parallel()

	data := []byte("zip-bytes")
	var sel Selection
	require.NoError(t, sel.AttachUpload(Upload{Filename: "faces.zip", Data: data}))
	data[0] = 'Z'

	up, ok := sel.Upload()
	require.True(t, ok)
	require.Equal(t, "zip-bytes", string(up.Data))

	req := sel.Request()
	require.True(t, req.HasUpload())
	req.Upload.Filename = "other.zip"
	req.Upload.Data[0] = 'Z'
	up, _ = sel.Upload()
	require.Equal(t, "faces.zip", up.Filename, "request must not alias selection state")
	require.Equal(t, "zip-bytes", string(up.Data), "request bytes must not alias selection state")

	sel.DetachUpload()
	_, ok = sel.Upload()
	require.False(t, ok)
}

func TestSelectionRejectsNamelessUpload(t *testing.T) {
	t.Parallel()

	var sel Selection
	require.ErrorIs(t, sel.AttachUpload(Upload{Data: []byte("x")}), ErrEmptyUpload)
}

func TestPolicyCheck(t *testing.T) {
	t.Parallel()

	upload := &Upload{Filename: "d.zip", Data: []byte("x")}
	cases := []struct {
		name    string
		policy  Policy
		req     Request
		wantErr error
	}{
		{"strict preset only", PolicyExactlyOne, Request{Dataset: PresetMNIST}, nil},
		{"strict upload only", PolicyExactlyOne, Request{Upload: upload}, nil},
		{"strict nothing", PolicyExactlyOne, Request{}, ErrNothingSelected},
		{"strict preset and upload", PolicyExactlyOne, Request{Dataset: PresetCIFAR10, Upload: upload}, ErrAmbiguousSelection},
		{"strict other with upload", PolicyExactlyOne, Request{Dataset: PresetOther, Upload: upload}, nil},
		{"strict other alone", PolicyExactlyOne, Request{Dataset: PresetOther}, nil},
		{"permissive nothing", PolicyPermissive, Request{}, nil},
		{"permissive both", PolicyPermissive, Request{Dataset: PresetOther, Upload: upload}, nil},
		{"unknown preset", PolicyPermissive, Request{Dataset: "SVHN"}, ErrUnknownPreset},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.policy.Check(tc.req)
			if tc.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestParsePolicy(t *testing.T) {
	t.Parallel()

	p, err := ParsePolicy("")
	require.NoError(t, err)
	require.Equal(t, PolicyExactlyOne, p)

	p, err = ParsePolicy(" Permissive ")
	require.NoError(t, err)
	require.Equal(t, PolicyPermissive, p)

	_, err = ParsePolicy("lenient")
	require.Error(t, err)
}

func TestWriteMultipartSendsPresetLiteral(t *testing.T) {
	t.Parallel()

	for _, preset := range Presets() {
		var sel Selection
		require.NoError(t, sel.SelectPreset(preset))

		form := encodeAndParse(t, sel.Request())
		require.Equal(t, []string{string(preset)}, form.Value[FieldSelection])

		got, err := FromMultipart(form)
		require.NoError(t, err)
		require.Equal(t, preset, got.Dataset)
		require.False(t, got.HasUpload())
	}
}

func TestWriteMultipartCarriesUploadBytes(t *testing.T) {
	t.Parallel()

	payload := []byte("PK\x03\x04 pretend archive")
	var sel Selection
	require.NoError(t, sel.AttachUpload(Upload{Filename: "digits.zip", ContentType: "application/zip", Data: payload}))

	form := encodeAndParse(t, sel.Request())
	require.Empty(t, form.Value[FieldSelection])

	got, err := FromMultipart(form)
	require.NoError(t, err)
	require.True(t, got.HasUpload())
	require.Equal(t, "digits.zip", got.Upload.Filename)
	require.Equal(t, "application/zip", got.Upload.ContentType)
	require.Equal(t, payload, got.Upload.Data)
}

func TestWriteMultipartEmptyFormKeepsEmptyFilePart(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	contentType, err := Request{}.WriteMultipart(&buf)
	require.NoError(t, err)

	reader := newReader(t, contentType, buf.Bytes())
	part, err := reader.NextPart()
	require.NoError(t, err)
	require.Equal(t, FieldUpload, part.FormName())
	require.Equal(t, "", part.FileName())
	require.Equal(t, defaultUploadContentType, part.Header.Get("Content-Type"))
	body, err := io.ReadAll(part)
	require.NoError(t, err)
	require.Empty(t, body)

	_, err = reader.NextPart()
	require.ErrorIs(t, err, io.EOF, "no dataset_selection part expected")

	form, err := newReader(t, contentType, buf.Bytes()).ReadForm(1 << 20)
	require.NoError(t, err)
	got, err := FromMultipart(form)
	require.NoError(t, err)
	require.False(t, got.HasUpload())
	require.False(t, got.HasDataset())
}

func TestFromMultipartRejectsUnknownPreset(t *testing.T) {
	t.Parallel()

	form := &multipart.Form{Value: map[string][]string{FieldSelection: {"ImageNet"}}}
	_, err := FromMultipart(form)
	require.True(t, errors.Is(err, ErrUnknownPreset))
}

func TestFromMultipartNilForm(t *testing.T) {
	t.Parallel()

	got, err := FromMultipart(nil)
	require.NoError(t, err)
	require.Equal(t, Request{}, got)
}

func TestUploadFilenameWithQuotesSurvives(t *testing.T) {
	t.Parallel()

	req := Request{Upload: &Upload{Filename: `my "best" set.zip`, Data: []byte("a")}}
	got, err := FromMultipart(encodeAndParse(t, req))
	require.NoError(t, err)
	require.Equal(t, `my "best" set.zip`, got.Upload.Filename)
}

func TestFromMultipartRejectsDotFilenames(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"..", ".", `..\..`, "a/.."} {
		req := Request{Upload: &Upload{Filename: name, Data: []byte("zip")}}
		_, err := FromMultipart(encodeAndParse(t, req))
		require.ErrorIs(t, err, ErrInvalidFilename, "filename %q", name)
	}
}

func TestCleanFilename(t *testing.T) {
	t.Parallel()

	got, err := CleanFilename(`C:\Users\me\faces.zip`)
	require.NoError(t, err)
	require.Equal(t, "faces.zip", got)

	got, err = CleanFilename("nested/dir/pets.zip")
	require.NoError(t, err)
	require.Equal(t, "pets.zip", got)

	_, err = CleanFilename("  ")
	require.ErrorIs(t, err, ErrEmptyUpload)

	for _, name := range []string{".", "..", "/", "x/..", `\`} {
		_, err = CleanFilename(name)
		require.ErrorIs(t, err, ErrInvalidFilename, "filename %q", name)
	}
}

func TestFromMultipartRejectsPaddedPreset(t *testing.T) {
	t.Parallel()

	form := &multipart.Form{Value: map[string][]string{FieldSelection: {" MNIST "}}}
	_, err := FromMultipart(form)
	require.ErrorIs(t, err, ErrUnknownPreset)
}

func encodeAndParse(t *testing.T, req Request) *multipart.Form {
	t.Helper()
	body, contentType, err := req.Body()
	require.NoError(t, err)
	raw, err := io.ReadAll(body)
	require.NoError(t, err)
	form, err := newReader(t, contentType, raw).ReadForm(1 << 20)
	require.NoError(t, err)
	return form
}

func newReader(t *testing.T, contentType string, raw []byte) *multipart.Reader {
	t.Helper()
	mediaType, params, err := mime.ParseMediaType(contentType)
	require.NoError(t, err)
	require.Equal(t, "multipart/form-data", mediaType)
	return multipart.NewReader(bytes.NewReader(raw), params["boundary"])
}
