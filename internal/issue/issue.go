// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"cmp"
	"maps"
	"slices"
	"strings"

	"gitlab.com/hepcedar/lhapdf-management/internal/tui"
)

const (
	DataPathNotFoundId Id = iota + 1
	IndexNotFoundId
	IndexCorruptedId
	NoMatchingSetId
	SetNotInstalledId
	FetchFailedId
	ExtractionFailedId
	ConfigLoadFailedId
	PermissionDeniedId
)

const (
	docsLink    HttpLink = "https://lhapdf.hepforge.org/"
	setsLink    HttpLink = "https://lhapdf.hepforge.org/pdfsets.html"
	mirrorLink  HttpLink = "https://lhapdfsets.web.cern.ch/current/"
	cueLangLink HttpLink = "https://cuelang.org/docs/"
)

type (
	Id int

	MarkdownMsg string

	HttpLink string

	// Issue is a catalog entry with Markdown guidance for a class of failure.
	Issue struct {
		id       Id          // ID used to lookup the issue
		mdMsg    MarkdownMsg // Markdown text that will be rendered
		docLinks []HttpLink  // never empty
		extLinks []HttpLink  // external links that might be useful for the user
	}
)

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

// Render renders the issue for a terminal. style is a glamour style name;
// "" picks one from the environment.
func (i *Issue) Render(style string) (string, error) {
	var md strings.Builder
	md.WriteString(string(i.mdMsg))
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		md.WriteString("\n\n## See also\n")
		for _, link := range i.docLinks {
			md.WriteString("- <" + string(link) + ">\n")
		}
		for _, link := range i.extLinks {
			md.WriteString("- <" + string(link) + ">\n")
		}
	}
	return render(md.String(), style)
}

var (
	render = func(in, style string) (string, error) {
		return tui.RenderMarkdown(in, style, 0)
	}

	dataPathNotFoundIssue = &Issue{
		id: DataPathNotFoundId,
		mdMsg: `
# No LHAPDF data directory found!

None of the candidate data directories exists.

## Search order
1. ` + "`$LHAPDF_DATA_PATH`" + `, then ` + "`$LHAPATH`" + `
2. ` + "`share/LHAPDF`" + ` under the install prefixes
3. The directory reported by ` + "`lhapdf-config --datadir`" + `

## Things you can try
- Point the tool at an existing directory:
~~~
$ lhapdf-management --pdfdir /path/to/LHAPDF list
~~~
- Or create the default one and fetch the index:
~~~
$ lhapdf-management update --init
~~~`,
		docLinks: []HttpLink{docsLink},
	}

	indexNotFoundIssue = &Issue{
		id: IndexNotFoundId,
		mdMsg: `
# Reference index not found!

The set list ` + "`pdfsets.index`" + ` is missing from the list directory.

## Things you can try
- Download it:
~~~
$ lhapdf-management update
~~~
- Or read it from another directory with ` + "`--listdir`" + `.`,
		docLinks: []HttpLink{docsLink},
		extLinks: []HttpLink{mirrorLink},
	}

	indexCorruptedIssue = &Issue{
		id: IndexCorruptedId,
		mdMsg: `
# Reference index is corrupted!

Each line of ` + "`pdfsets.index`" + ` must read ` + "`<id> <name> [<version>]`" + `.

## Things you can try
- Replace it with a fresh copy:
~~~
$ lhapdf-management update
~~~`,
		docLinks: []HttpLink{docsLink},
	}

	noMatchingSetIssue = &Issue{
		id: NoMatchingSetId,
		mdMsg: `
# No PDF set matches!

Patterns are matched against the whole set name. ` + "`*`" + ` matches any run of
characters and ` + "`?`" + ` a single one; quote patterns so the shell leaves them alone.

## Things you can try
~~~
$ lhapdf-management list 'CT18*'
$ lhapdf-management update
~~~`,
		docLinks: []HttpLink{setsLink},
	}

	setNotInstalledIssue = &Issue{
		id: SetNotInstalledId,
		mdMsg: `
# PDF set not installed!

The set is listed in the index but no data path holds its files.

## Things you can try
~~~
$ lhapdf-management install <name>
$ lhapdf-management list --installed
~~~`,
		docLinks: []HttpLink{setsLink},
	}

	fetchFailedIssue = &Issue{
		id: FetchFailedId,
		mdMsg: `
# Download failed!

Every configured source was tried in order and none delivered the file.

## Things you can try
- Check your network connection and proxy settings
- Add a mirror in front of the defaults:
~~~
$ lhapdf-management --sources https://mirror.example.org/pdfsets install <name>
~~~
- Use a CVMFS mirror through ` + "`$LHAPDF_CVMFSBASE`" + ` or ` + "`cvmfs_base`" + ` in the config file`,
		docLinks: []HttpLink{docsLink},
		extLinks: []HttpLink{mirrorLink},
	}

	extractionFailedIssue = &Issue{
		id: ExtractionFailedId,
		mdMsg: `
# Unable to unpack the set archive!

The downloaded file is not a valid gzip-compressed tarball, or it tries to
write outside the install directory.

## Things you can try
- Retry; a truncated download leaves a broken archive
- Keep the archive for inspection:
~~~
$ lhapdf-management install --keep <name>
~~~`,
		docLinks: []HttpLink{docsLink},
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

The config file is not valid CUE or does not match the expected fields.

## Things you can try
~~~
$ lhapdf-management config path
$ lhapdf-management config dump
~~~`,
		docLinks: []HttpLink{cueLangLink},
	}

	permissionDeniedIssue = &Issue{
		id: PermissionDeniedId,
		mdMsg: `
# Permission denied!

The data directory is not writable by the current user.

## Things you can try
- Install into a directory you own with ` + "`--pdfdir`" + `
- Add that directory to ` + "`$LHAPDF_DATA_PATH`" + ` so LHAPDF finds the sets`,
		docLinks: []HttpLink{docsLink},
	}

	issues = map[Id]*Issue{
		dataPathNotFoundIssue.Id(): dataPathNotFoundIssue,
		indexNotFoundIssue.Id():    indexNotFoundIssue,
		indexCorruptedIssue.Id():   indexCorruptedIssue,
		noMatchingSetIssue.Id():    noMatchingSetIssue,
		setNotInstalledIssue.Id():  setNotInstalledIssue,
		fetchFailedIssue.Id():      fetchFailedIssue,
		extractionFailedIssue.Id(): extractionFailedIssue,
		configLoadFailedIssue.Id(): configLoadFailedIssue,
		permissionDeniedIssue.Id(): permissionDeniedIssue,
	}
)

// Values returns every catalog issue ordered by id.
func Values() []*Issue {
	return slices.SortedFunc(maps.Values(issues), func(a, b *Issue) int {
		return cmp.Compare(a.id, b.id)
	})
}

func Get(id Id) *Issue {
	return issues[id]
}
