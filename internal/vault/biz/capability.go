package biz

import (
	"fmt"
	"net/url"
	"strings"
)

// fragments that only appear when a template or formatter was fed a zero value
var malformedFragments = []string{"undefined", "<nil>", "%!", "{{"}

// checkCapability rejects presigned URLs that are not absolute or do not
// address the storage key they were minted for.
func checkCapability(raw, key string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: unparsable url: %v", ErrCapabilityIssuance, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%w: url is not absolute", ErrCapabilityIssuance)
	}
	if !strings.HasSuffix(u.Path, key) {
		return fmt.Errorf("%w: url does not address %q", ErrCapabilityIssuance, key)
	}
	for _, frag := range malformedFragments {
		if strings.Contains(raw, frag) {
			return fmt.Errorf("%w: url contains %q", ErrCapabilityIssuance, frag)
		}
	}
	return nil
}
