package imagerender

import (
	"bytes"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/local/pdfvalidator/internal/verdict"
)

// Decrypt removes PDF encryption using password as both user and owner
// password. The plaintext copy is kept in memory only.
func Decrypt(data []byte, password string) ([]byte, error) {
	conf := model.NewDefaultConfiguration()
	conf.UserPW = password
	conf.OwnerPW = password

	var out bytes.Buffer
	if err := api.Decrypt(bytes.NewReader(data), &out, conf); err != nil {
		return nil, &verdict.DecodeError{Reason: "decrypt with supplied password", Err: err}
	}
	return out.Bytes(), nil
}
