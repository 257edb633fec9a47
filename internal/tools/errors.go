// Copyright (C) 2025 Dyne.org foundation
// designed, written and maintained by Denis Roio <jaromil@dyne.org>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package tools

import (
	"fmt"

	apperrors "localagent/internal/errors"
	"localagent/internal/paths"
)

// Tool error kinds. Each is an errors.Is target; the dispatcher never lets
// them escape as anything but a failed Result.
var (
	ErrUnknownTool        = apperrors.Kind(apperrors.CodeUnknownTool)
	ErrArgumentValidation = apperrors.Kind(apperrors.CodeArgumentValidation)
	ErrOutOfBounds        = paths.ErrOutOfBounds
	ErrNotFound           = apperrors.Kind(apperrors.CodeNotFound)
	ErrNotADirectory      = apperrors.Kind(apperrors.CodeNotADirectory)
	ErrIsADirectory       = apperrors.Kind(apperrors.CodeIsADirectory)
	ErrPermission         = apperrors.Kind(apperrors.CodePermission)
	ErrTimeout            = apperrors.Kind(apperrors.CodeTimeout)
	ErrToolExecution      = apperrors.Kind(apperrors.CodeToolExecution)
)

func newUnknownToolError(name string) *apperrors.Error {
	return apperrors.New(apperrors.CodeUnknownTool, fmt.Sprintf("unknown tool %q", name))
}

func newArgumentError(param, reason string) *apperrors.Error {
	if param == "" {
		return apperrors.New(apperrors.CodeArgumentValidation, fmt.Sprintf("invalid arguments: %s", reason))
	}
	return apperrors.New(apperrors.CodeArgumentValidation, fmt.Sprintf("invalid argument '%s': %s", param, reason))
}

func newNotFoundError(rel string, err error) *apperrors.Error {
	return apperrors.Wrap(apperrors.CodeNotFound, fmt.Sprintf("'%s' not found", rel), err)
}

func newPermissionError(rel, operation string, err error) *apperrors.Error {
	return apperrors.Wrap(apperrors.CodePermission, fmt.Sprintf("permission denied %s '%s'", operation, rel), err)
}

// NewToolExecutionError wraps an unanticipated tool failure.
func NewToolExecutionError(toolName, operation string, err error) *apperrors.Error {
	if operation != "" {
		return apperrors.Wrap(apperrors.CodeToolExecution, fmt.Sprintf("tool %s failed during %s", toolName, operation), err)
	}
	return apperrors.Wrap(apperrors.CodeToolExecution, fmt.Sprintf("tool %s failed", toolName), err)
}
