package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/pulse-metrics/insights-cli/internal/model"
)

var postsLimit int

var postsCmd = &cobra.Command{
	Use:   "posts",
	Short: "List canonical posts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		posts, err := st.LoadPosts(ctx)
		if err != nil {
			return eris.Wrap(err, "posts list")
		}

		if len(posts) == 0 {
			fmt.Fprintln(os.Stderr, "No posts stored.")
			return nil
		}

		total := len(posts)
		if postsLimit > 0 && len(posts) > postsLimit {
			posts = posts[:postsLimit]
		}

		formatPostsList(os.Stdout, posts)
		fmt.Fprintf(os.Stdout, "\n%d of %d posts shown\n", len(posts), total)
		return nil
	},
}

func init() {
	postsCmd.Flags().IntVar(&postsLimit, "limit", 50, "max number of posts to display")
	rootCmd.AddCommand(postsCmd)
}

// formatPostsList writes a tabular list of posts to out.
func formatPostsList(out io.Writer, posts []model.CanonicalPost) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "POST_ID\tTIMESTAMP\tMEDIA\tLIKES\tCOMMENTS\tIMPRESSIONS\tREACH\tHASHTAGS")
	for _, p := range posts {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			p.PostID,
			p.Timestamp.Format("2006-01-02 15:04"),
			p.MediaType,
			p.Likes,
			p.Comments,
			p.Impressions,
			p.Reach,
			truncate(p.Hashtags, 40),
		)
	}
	_ = w.Flush()
}

// truncate shortens s to max runes with an ellipsis marker.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
