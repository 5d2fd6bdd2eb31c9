package cliflag

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNamedFlagSets(t *testing.T) {
	var fss NamedFlagSets
	fss.FlagSet("http").String("http.addr", ":8080", "listen address")
	fss.FlagSet("log").String("log.level", "INFO", "log level")
	fss.FlagSet("http").Duration("http.read-timeout", 0, "read timeout")

	assert.Equal(t, []string{"http", "log"}, fss.Order)
	assert.NotNil(t, fss.FlagSets["http"].Lookup("http.read-timeout"))

	var buf bytes.Buffer
	PrintSections(&buf, fss, 0)
	out := buf.String()
	assert.Contains(t, out, "Http flags:")
	assert.Contains(t, out, "--log.level")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("Http flags")), bytes.Index(buf.Bytes(), []byte("Log flags")))
}
