package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/toccatech/coffre/clientcli"
)

var (
	uploadResource    string
	uploadVisibility  string
	uploadSharedWith  []string
	uploadCategory    string
	uploadContentType string
)

var uploadCmd = &cobra.Command{
	Use:   "upload <local-path>",
	Short: "Upload a file into a resource",
	Long: `Upload a file into a resource.

The server verifies the file's real content type against both the declared
type and the resource's accepted types; a renamed file will be rejected.

Examples:
  coffre-cli upload --resource avatars --visibility public ./me.png
  coffre-cli upload --resource scores --visibility private --shared-with 0x12 ./partition.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().StringVarP(&uploadResource, "resource", "r", "", "target resource name (required)")
	uploadCmd.Flags().StringVar(&uploadVisibility, "visibility", "private", "visibility: public, unlisted, private, application")
	uploadCmd.Flags().StringSliceVar(&uploadSharedWith, "shared-with", nil, "profile ids to share the file with")
	uploadCmd.Flags().StringVar(&uploadCategory, "category", "", "optional category label")
	uploadCmd.Flags().StringVar(&uploadContentType, "content-type", "", "override the declared content type")
	_ = uploadCmd.MarkFlagRequired("resource")
}

func runUpload(_ *cobra.Command, args []string) error {
	client, err := getClient()
	if err != nil {
		return err
	}

	opts := clientcli.UploadOptions{
		LocalPath:   args[0],
		Resource:    uploadResource,
		Visibility:  uploadVisibility,
		SharedWith:  uploadSharedWith,
		Category:    uploadCategory,
		ContentType: uploadContentType,
	}

	formatter := getFormatter()

	result, err := client.Upload(context.Background(), opts)
	if err != nil {
		_ = formatter.FormatError(os.Stderr, err)
		return err
	}

	return formatter.FormatUpload(os.Stdout, result)
}
