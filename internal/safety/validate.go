// SPDX-License-Identifier: AGPL-3.0-or-later
package safety

import (
	"regexp"
	"strings"

	"github.com/wardd-org/wardd/internal/risk"
	"github.com/wardd-org/wardd/internal/types"
)

var (
	serviceNameRx = regexp.MustCompile(`^[a-zA-Z0-9_.@:-]+$`)
	containerIDRx = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)
	packageNameRx = regexp.MustCompile(`^[a-zA-Z0-9_.+:~-]+$`)
)

// forbidden in any identifier regardless of the per-kind pattern; these are
// the characters shells use for substitution and chaining.
const forbiddenChars = ";|&$`\n\r<>(){}"

func containsForbidden(value string) bool {
	return strings.ContainsAny(value, forbiddenChars)
}

// ValidateServiceName checks a systemd unit name before it is interpolated
// into a service command.
func (s *State) ValidateServiceName(name string) error {
	max := s.Limits().MaxServiceName
	return validateIdentifier("service_name", name, max, serviceNameRx)
}

// ValidateContainerID checks a container name or ID.
func (s *State) ValidateContainerID(id string) error {
	max := s.Limits().MaxContainerID
	return validateIdentifier("container_id", id, max, containerIDRx)
}

// ValidatePackageName checks a package name for package-manager commands.
func (s *State) ValidatePackageName(name string) error {
	max := s.Limits().MaxPackageName
	return validateIdentifier("package_name", name, max, packageNameRx)
}

// ValidateTargets applies the per-kind identifier rules to the operands a
// service, container, or package command acts on. Commands outside those
// categories pass through untouched.
func (s *State) ValidateTargets(command string) error {
	kind, targets := risk.Targets(command)
	for _, target := range targets {
		var err error
		switch kind {
		case types.CategoryService:
			err = s.ValidateServiceName(target)
		case types.CategoryContainer:
			err = s.ValidateContainerID(target)
		case types.CategoryPackage:
			err = s.ValidatePackageName(target)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func validateIdentifier(field, value string, max int, rx *regexp.Regexp) error {
	if value == "" {
		return &ValidationError{Field: field, Msg: "must not be empty"}
	}
	if len(value) > max {
		return &ValidationError{Field: field, Msg: "exceeds maximum length"}
	}
	if containsForbidden(value) || !rx.MatchString(value) {
		return &ValidationError{Field: field, Msg: "contains forbidden characters"}
	}
	if strings.HasPrefix(value, "-") {
		return &ValidationError{Field: field, Msg: "must not start with a dash"}
	}
	return nil
}
