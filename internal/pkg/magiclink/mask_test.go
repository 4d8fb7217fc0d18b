package magiclink

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskEmail(t *testing.T) {
	cases := map[string]string{
		"abrahamc@dotcom.com": "ab***c@do***.com",
		"user@example.com":    "us***r@ex***.com",
		"ab@cd.io":            "a***@cd***.io",
		"a@b.co":              "a***@b***.co",
	}
	for in, want := range cases {
		assert.Equal(t, want, maskEmail(in), "input %q", in)
	}
}

func TestMaskEmailNeverLeaksFullLocalPart(t *testing.T) {
	for _, in := range []string{"longlocalpart@example.com", "abcd@example.com"} {
		masked := maskEmail(in)
		local := strings.SplitN(in, "@", 2)[0]
		assert.NotContains(t, masked, local)
	}
}
