package remote

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"net/url"

	"github.com/Azure/azure-storage-blob-go/azblob"

	"github.com/forensics-collect/collector/internal/ferrors"
	"github.com/forensics-collect/collector/internal/logging"
)

const azureComponent = "remote.azure"

// azureBlockSize stages data in 4 MiB blocks, far below the block-blob
// service's own per-block maximum; in practice collection batches are
// small enough that most uploads fit in a single block.
const azureBlockSize = 4 * 1024 * 1024

// AzureUpload pushes data to a block blob in container, staging it in
// azureBlockSize chunks and committing the block list in one call so a
// partial upload never leaves a visible, truncated blob.
func AzureUpload(accountName, accountKey, container, blobName string, data []byte, contentType string) error {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return ferrors.Wrap(ferrors.ErrRemoteAPIKey, azureComponent, "build shared key credential", err)
	}
	pipeline := azblob.NewPipeline(credential, azblob.PipelineOptions{})

	containerURL, err := url.Parse(fmt.Sprintf("https://%s.blob.core.windows.net/%s", accountName, container))
	if err != nil {
		return ferrors.Wrap(ferrors.ErrRemoteUpload, azureComponent, "parse container url", err)
	}
	blockBlobURL := azblob.NewContainerURL(*containerURL, pipeline).NewBlockBlobURL(blobName)

	ctx := context.Background()
	var blockIDs []string
	for offset := 0; offset < len(data); offset += azureBlockSize {
		end := offset + azureBlockSize
		if end > len(data) {
			end = len(data)
		}
		blockID := encodeBlockID(len(blockIDs))
		blockIDs = append(blockIDs, blockID)

		rs := newBytesReadSeekCloser(data[offset:end])
		_, err := blockBlobURL.StageBlock(ctx, blockID, rs, azblob.LeaseAccessConditions{}, nil)
		if err != nil {
			return ferrors.Wrap(ferrors.ErrRemoteUpload, azureComponent, "stage block", err)
		}
	}

	headers := azblob.BlobHTTPHeaders{ContentType: contentType}
	_, err = blockBlobURL.CommitBlockList(ctx, blockIDs, headers, azblob.Metadata{}, azblob.BlobAccessConditions{})
	if err != nil {
		return ferrors.Wrap(ferrors.ErrRemoteUpload, azureComponent, "commit block list", err)
	}

	logging.Component(azureComponent).Infof("uploaded %s/%s (%d bytes in %d blocks)", container, blobName, len(data), len(blockIDs))
	return nil
}

// encodeBlockID produces a fixed-width, base64-encoded block ID from a
// sequence number, satisfying the block blob API's requirement that
// every block ID within one commit share the same encoded length.
func encodeBlockID(seq int) string {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(seq))
	return base64.StdEncoding.EncodeToString(b)
}
