package clientcli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/toccatech/coffre"
)

// Formatter renders CLI output in either human-readable or JSON form.
type Formatter struct {
	JSON  bool
	Quiet bool
}

// FormatUpload renders an upload result.
func (f Formatter) FormatUpload(w io.Writer, result UploadResult) error {
	if f.JSON {
		return json.NewEncoder(w).Encode(result)
	}
	if f.Quiet {
		_, err := fmt.Fprintln(w, result.FileID)
		return err
	}
	_, err := fmt.Fprintf(w, "uploaded %s (id: %s, type: %s, %d bytes)\n",
		result.LocalPath, result.FileID, result.File.MIMEType, result.File.Size)
	return err
}

// FormatInfo renders a file record.
func (f Formatter) FormatInfo(w io.Writer, rec coffre.FileRecord) error {
	if f.JSON {
		return json.NewEncoder(w).Encode(rec)
	}
	_, err := fmt.Fprintf(w, "id:           %s\nname:         %s\nstored as:    %s\nsize:         %d\ntype:         %s\nvisibility:   %s\nowner:        %s\ncreated:      %s\n",
		rec.ID, rec.OriginalName, rec.StoredName, rec.Size, rec.MIMEType, rec.Visibility, rec.Owner, rec.CreatedAt)
	return err
}

// FormatError renders an error.
func (f Formatter) FormatError(w io.Writer, err error) error {
	if f.JSON {
		return json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
	}
	_, werr := fmt.Fprintf(w, "error: %v\n", err)
	return werr
}
