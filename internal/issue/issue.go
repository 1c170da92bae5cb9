// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"cmp"
	"maps"
	"slices"

	"github.com/charmbracelet/glamour"
)

type Id int

const (
	ConfigLoadFailedId Id = iota + 1
	ReleaseDiscoveryFailedId
	RateLimitedId
	NoCompatibleAssetId
	DownloadFailedId
	InvalidArtifactId
	ChecksumMismatchId
	InstallRolledBackId
	DegradedStateId
	ManagedInstallId
	PermissionDeniedId
	DependencyMissingId
	DependencyUpgradeFailedId
)

type MarkdownMsg string

type HttpLink string

type Renderer interface {
	Render(in string, stylePath string) (string, error)
}

type Issue struct {
	id       Id          // ID used to lookup the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	docLinks []HttpLink  // project documentation about this issue
	extLinks []HttpLink  // external links that might be useful for the user
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

func (i *Issue) Render(stylePath string) (string, error) {
	extraMd := ""
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		extraMd += "\n\n"
		extraMd += "## See also\n"
		for _, link := range i.docLinks {
			extraMd += "- <" + string(link) + ">\n"
		}
		for _, link := range i.extLinks {
			extraMd += "- <" + string(link) + ">\n"
		}
	}
	return render(string(i.mdMsg)+extraMd, stylePath)
}

var (
	render = glamour.Render

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

Your config.cue could not be parsed or does not match the schema.

## Things you can try:
- Print a complete, valid file and compare:
~~~
$ tunegrab config dump
~~~
- Show where tunegrab looks for the file:
~~~
$ tunegrab config path
~~~
- Check TUNEGRAB_* environment variables, they override the file`,
	}

	releaseDiscoveryFailedIssue = &Issue{
		id: ReleaseDiscoveryFailedId,
		mdMsg: `
# Could not look up releases!

The release server did not answer, or answered with something unexpected.
Nothing on your machine was changed.

## Things you can try:
- Check your network connection and proxy settings
- Retry in a few minutes
- Point ` + "`update.api_base_url`" + ` at a reachable mirror`,
		extLinks: []HttpLink{"https://www.githubstatus.com"},
	}

	rateLimitedIssue = &Issue{
		id: RateLimitedId,
		mdMsg: `
# GitHub rate limit reached!

Anonymous requests to the GitHub API are limited per IP address.

## Things you can try:
- Wait until the limit resets and retry
- Authenticate with a token:
~~~
$ export GITHUB_TOKEN=<token>
$ tunegrab update check
~~~`,
		extLinks: []HttpLink{"https://docs.github.com/en/rest/using-the-rest-api/rate-limits-for-the-rest-api"},
	}

	noCompatibleAssetIssue = &Issue{
		id: NoCompatibleAssetId,
		mdMsg: `
# No build for your platform!

The release exists but publishes no artifact for this operating system and
architecture.

## Things you can try:
- Open the release page and check the published assets
- Build from source and run tunegrab in source mode`,
	}

	downloadFailedIssue = &Issue{
		id: DownloadFailedId,
		mdMsg: `
# Download failed!

The artifact could not be downloaded completely. Partial files were removed
and the installed version is untouched.

## Things you can try:
- Retry the update, interrupted downloads start over
- Check free space in the temp directory (` + "`update.temp_dir`" + `)
- Raise ` + "`update.download_timeout`" + ` on slow connections`,
	}

	invalidArtifactIssue = &Issue{
		id: InvalidArtifactId,
		mdMsg: `
# Downloaded file is not a valid tunegrab build!

The file was too small or not an executable, which usually means an error
page was downloaded instead of the binary. It was not installed.

## Things you can try:
- Retry the update
- Download the release manually from the release page`,
	}

	checksumMismatchIssue = &Issue{
		id: ChecksumMismatchId,
		mdMsg: `
# Checksum mismatch!

The downloaded file does not match the checksum published with the release.
It was deleted and nothing was installed.

## Things you can try:
- Retry the update, the download may have been corrupted
- Report the release if the mismatch persists`,
	}

	installRolledBackIssue = &Issue{
		id: InstallRolledBackId,
		mdMsg: `
# Update rolled back!

Installing the new version failed, and the previous version was restored.
tunegrab keeps working as before.

## Things you can try:
- Check the helper log in the temp directory on Windows
- Make sure nothing else (antivirus, another tunegrab) holds the executable
- Retry the update`,
	}

	degradedStateIssue = &Issue{
		id: DegradedStateId,
		mdMsg: `
# Installation needs manual repair!

The update failed **and** the previous version could not be restored. The
error above names two paths: the executable location and the backup.

## To repair:
1. Copy or rename the backup file back to the executable path
2. Start tunegrab and run ` + "`tunegrab history`" + ` to confirm the version
3. If the backup is missing, download the release manually`,
	}

	managedInstallIssue = &Issue{
		id: ManagedInstallId,
		mdMsg: `
# tunegrab is managed by a package manager!

Self-update does not replace binaries installed by Homebrew, go install,
Flatpak or Snap. Use the package manager command printed above instead.`,
	}

	permissionDeniedIssue = &Issue{
		id: PermissionDeniedId,
		mdMsg: `
# Permission denied!

tunegrab cannot write next to its own executable.

## Things you can try:
- Run the update from an account that owns the install directory
- Move tunegrab to a user-writable location such as ~/.local/bin`,
	}

	dependencyMissingIssue = &Issue{
		id: DependencyMissingId,
		mdMsg: `
# Downloader tool not found!

tunegrab needs an external downloader (yt-dlp by default) on your PATH.

## Things you can try:
- Install it with:
~~~
$ tunegrab deps upgrade
~~~
- Or set ` + "`dependency.install_command`" + ` to your package manager`,
		extLinks: []HttpLink{"https://github.com/yt-dlp/yt-dlp#installation"},
	}

	dependencyUpgradeFailedIssue = &Issue{
		id: DependencyUpgradeFailedId,
		mdMsg: `
# Upgrading the downloader tool failed!

The package manager command returned an error. The previously installed
version, if any, is still in place.

## Things you can try:
- Run the install command yourself to see its full output
- Adjust ` + "`dependency.install_command`" + ` (e.g. pipx instead of pip)`,
	}

	issues = map[Id]*Issue{
		configLoadFailedIssue.Id():        configLoadFailedIssue,
		releaseDiscoveryFailedIssue.Id():  releaseDiscoveryFailedIssue,
		rateLimitedIssue.Id():             rateLimitedIssue,
		noCompatibleAssetIssue.Id():       noCompatibleAssetIssue,
		downloadFailedIssue.Id():          downloadFailedIssue,
		invalidArtifactIssue.Id():         invalidArtifactIssue,
		checksumMismatchIssue.Id():        checksumMismatchIssue,
		installRolledBackIssue.Id():       installRolledBackIssue,
		degradedStateIssue.Id():           degradedStateIssue,
		managedInstallIssue.Id():          managedInstallIssue,
		permissionDeniedIssue.Id():        permissionDeniedIssue,
		dependencyMissingIssue.Id():       dependencyMissingIssue,
		dependencyUpgradeFailedIssue.Id(): dependencyUpgradeFailedIssue,
	}
)

// Values returns every catalogued issue ordered by id.
func Values() []*Issue {
	return slices.SortedFunc(maps.Values(issues), func(a, b *Issue) int {
		return cmp.Compare(a.id, b.id)
	})
}

func Get(id Id) *Issue {
	return issues[id]
}
