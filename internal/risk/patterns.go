// SPDX-License-Identifier: AGPL-3.0-or-later

// Package risk classifies candidate shell commands against static,
// compiled-at-startup pattern tables. The tables are versioned with the
// binary and cannot be mutated at runtime; only their sizes are reported
// through the settings surface.
package risk

import (
	"regexp"

	"github.com/wardd-org/wardd/internal/types"
)

type destructivePattern struct {
	re      *regexp.Regexp
	level   types.RiskLevel
	message string
}

type injectionPattern struct {
	re      *regexp.Regexp
	message string
}

var destructivePatterns = []destructivePattern{
	// Recursive deletions
	{regexp.MustCompile(`(?i)\brm\b.*-[rR].*\s+/(\s|$)`), types.RiskCritical, "Recursive deletion of root or system paths"},
	{regexp.MustCompile(`(?i)\brm\b.*--recursive.*\s+/(\s|$)`), types.RiskCritical, "Recursive deletion with long option"},
	{regexp.MustCompile(`(?i)\brm\b.*-[rR]f?.*\s+/(etc|var|usr|bin|sbin|lib|boot|home)\b`), types.RiskCritical, "Deletion of system directories"},
	{regexp.MustCompile(`(?i)\brm\b.*\s-\w*[rR]`), types.RiskHigh, "Recursive deletion"},

	// Disk destruction
	{regexp.MustCompile(`(?i)\bdd\b.*\bof=/dev/[sh]d[a-z]`), types.RiskCritical, "Direct disk write"},
	{regexp.MustCompile(`(?i)\bdd\b.*\bof=/dev/nvme`), types.RiskCritical, "Direct NVMe write"},
	{regexp.MustCompile(`(?i)\bmkfs\b`), types.RiskCritical, "Filesystem creation"},
	{regexp.MustCompile(`(?i)\bfdisk\b`), types.RiskCritical, "Partition manipulation"},
	{regexp.MustCompile(`(?i)\bparted\b`), types.RiskCritical, "Partition manipulation"},

	// Fork bombs and resource exhaustion
	{regexp.MustCompile(`:\(\)\s*\{.*\}.*:\s*;`), types.RiskCritical, "Fork bomb detected"},
	{regexp.MustCompile(`(?i)\bwhile\s+true.*do.*done`), types.RiskHigh, "Infinite loop"},

	// Privilege escalation
	{regexp.MustCompile(`(?i)\bchmod\b.*777\s+/`), types.RiskHigh, "Dangerous permission change on root"},
	{regexp.MustCompile(`(?i)\bchmod\b.*-R.*777`), types.RiskHigh, "Recursive world-writable permissions"},
	{regexp.MustCompile(`(?i)\bchown\b.*-R.*root.*:/`), types.RiskHigh, "Recursive ownership change to root"},

	// Network-based attacks
	{regexp.MustCompile(`(?i)\bcurl\b.*\|\s*(ba)?sh`), types.RiskHigh, "Piping curl to shell"},
	{regexp.MustCompile(`(?i)\bwget\b.*\|\s*(ba)?sh`), types.RiskHigh, "Piping wget to shell"},
	{regexp.MustCompile(`(?i)\bcurl\b.*-o\s*/`), types.RiskHigh, "Curl writing to system paths"},

	// Credential theft
	{regexp.MustCompile(`(?i)\bcat\b.*(/etc/shadow|/etc/passwd|\.ssh/)`), types.RiskHigh, "Reading sensitive files"},
	{regexp.MustCompile(`(?i)\bcp\b.*(/etc/shadow|\.ssh/id_)`), types.RiskHigh, "Copying sensitive files"},

	// System state destruction
	{regexp.MustCompile(`(?i)\bsystemctl\b.*(disable|mask).*(ssh|network|firewall)`), types.RiskHigh, "Disabling critical services"},
	{regexp.MustCompile(`(?i)\bufw\b.*disable`), types.RiskHigh, "Disabling firewall"},
	{regexp.MustCompile(`(?i)\biptables\b.*-F`), types.RiskHigh, "Flushing firewall rules"},
}

var injectionPatterns = []injectionPattern{
	// Direct instruction override
	{regexp.MustCompile(`(?i)\bignore\b.*\b(previous|above|all)\b.*\b(instructions?|rules?|guidelines?)\b`), "Instruction override attempt"},
	{regexp.MustCompile(`(?i)\bdisregard\b.*\b(previous|above|all)\b`), "Disregard instruction attempt"},
	{regexp.MustCompile(`(?i)\bforget\b.*\b(everything|all|previous)\b`), "Memory wipe attempt"},

	// Role manipulation
	{regexp.MustCompile(`(?i)\byou\s+are\s+now\b`), "Role change attempt"},
	{regexp.MustCompile(`(?i)\bact\s+as\b.*\b(different|new|another)\b`), "Role change attempt"},
	{regexp.MustCompile(`(?i)\bpretend\s+(you're|to\s+be)\b`), "Pretend instruction"},

	// System prompt extraction
	{regexp.MustCompile(`(?i)\b(show|print|display|reveal)\b.*\b(system|initial)\b.*\b(prompt|instructions?)\b`), "Prompt extraction attempt"},
	{regexp.MustCompile(`(?i)\bwhat\s+(are|were)\s+your\s+(original|initial)\b`), "Prompt extraction attempt"},

	// Jailbreak phrases
	{regexp.MustCompile(`\bDAN\b`), "Known jailbreak pattern"},
	{regexp.MustCompile(`(?i)\bDo\s+Anything\s+Now\b`), "Known jailbreak pattern"},
	{regexp.MustCompile(`(?i)\bjailbreak\b`), "Jailbreak attempt"},

	// Safety bypass
	{regexp.MustCompile(`(?i)\bbypass\b.*\b(safety|security|filter)\b`), "Safety bypass attempt"},
	{regexp.MustCompile(`(?i)\b(don't|do\s+not)\s+(ask|require)\s+(for\s+)?(approval|confirmation|permission)\b`), "Approval bypass attempt"},
	{regexp.MustCompile(`(?i)\bwithout\b.*\b(asking|approval|confirmation)\b`), "Approval bypass attempt"},

	// Hidden instructions
	{regexp.MustCompile(`\[SYSTEM\]`), "Fake system message"},
	{regexp.MustCompile(`\[ADMIN\]`), "Fake admin message"},
	{regexp.MustCompile(`<\s*system\s*>`), "Fake system tag"},
}

// DestructivePatternCount reports the size of the destructive rule table.
func DestructivePatternCount() int { return len(destructivePatterns) }

// InjectionPatternCount reports the size of the injection rule table.
func InjectionPatternCount() int { return len(injectionPatterns) }

var safeCommands = map[string]bool{
	"ls": true, "cat": true, "head": true, "tail": true, "grep": true,
	"find": true, "which": true, "whereis": true,
	"whoami": true, "hostname": true, "uname": true, "uptime": true,
	"date": true, "cal": true,
	"df": true, "du": true, "free": true, "top": true, "htop": true,
	"ps": true, "pgrep": true,
	"ip": true, "ifconfig": true, "netstat": true, "ss": true,
	"ping": true, "traceroute": true, "nslookup": true,
	"man": true, "info": true, "help": true, "type": true,
	"file": true, "stat": true,
	"echo": true, "printf": true, "pwd": true, "env": true, "printenv": true,
}

var mediumRiskCommands = map[string]bool{
	"apt": true, "apt-get": true, "dnf": true, "yum": true,
	"pacman": true, "zypper": true,
	"pip": true, "npm": true, "cargo": true,
	"systemctl": true, "service": true,
	"chmod": true, "chown": true,
	"cp": true, "mv": true, "mkdir": true, "touch": true,
	"useradd": true, "usermod": true, "groupadd": true,
}

var highRiskCommands = map[string]bool{
	"rm": true, "rmdir": true,
	"dd":   true,
	"mkfs": true, "fdisk": true, "parted": true,
	"mount": true, "umount": true,
	"iptables": true, "ufw": true,
	"shutdown": true, "reboot": true, "poweroff": true, "init": true,
	"passwd": true, "chpasswd": true,
}

var criticalConfigPaths = []string{
	"/etc/fstab",
	"/etc/passwd",
	"/etc/shadow",
	"/etc/group",
	"/etc/sudoers",
	"/etc/ssh/sshd_config",
	"/etc/nginx/nginx.conf",
	"/etc/apache2/apache2.conf",
	"/etc/systemd/system/",
	"/boot/grub/grub.cfg",
}

var packageManagers = map[string]bool{
	"apt": true, "apt-get": true, "dnf": true, "yum": true,
	"pacman": true, "zypper": true,
	"pip": true, "npm": true, "cargo": true,
}

var containerCommands = map[string]bool{
	"docker": true, "podman": true, "nerdctl": true, "docker-compose": true,
}
