package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/resumekit/fileintake/pkg/fileintake"
	fsstorage "github.com/resumekit/fileintake/pkg/fileintake/storage/fs"
	s3storage "github.com/resumekit/fileintake/pkg/fileintake/storage/s3"
)

// storagecheck exercises a configured blob backend from the command line:
// single operations or a full upload/stat/download/delete roundtrip. Useful
// for verifying credentials and bucket policy before pointing the server at
// a backend.
func main() {
	backendType := flag.String("backend", "fs", "Backend type: fs or s3")

	baseDir := flag.String("base-dir", "./data/files", "Base directory (fs backend)")

	region := flag.String("region", "us-east-1", "AWS region")
	bucket := flag.String("bucket", "", "S3 bucket name")
	accessKey := flag.String("access-key", "", "AWS access key ID")
	secretKey := flag.String("secret-key", "", "AWS secret access key")
	endpoint := flag.String("endpoint", "", "Custom S3 endpoint (for MinIO, etc.)")
	usePathStyle := flag.Bool("use-path-style", false, "Use path-style addressing")
	enableSSE := flag.Bool("enable-sse", false, "Enable server-side encryption")
	sseAlgorithm := flag.String("sse-algorithm", "AES256", "SSE algorithm (AES256 or aws:kms)")
	sseKMSKeyID := flag.String("sse-kms-key-id", "", "KMS key ID for aws:kms algorithm")
	createBucket := flag.Bool("create-bucket", false, "Create bucket if it doesn't exist")

	command := flag.String("command", "help", "Command to execute: roundtrip, upload, download, delete, stat, help")
	objectKey := flag.String("key", "", "Object key for operations")
	filePath := flag.String("file", "", "File path for upload/download")

	// MinIO shortcut
	useMinio := flag.Bool("use-minio", false, "Use MinIO defaults (sets endpoint, path-style, etc.)")
	minioEndpoint := flag.String("minio-endpoint", "http://localhost:9000", "MinIO server endpoint")

	flag.Parse()

	if *useMinio {
		*backendType = "s3"
		*endpoint = *minioEndpoint
		*usePathStyle = true
		*createBucket = true
		if *accessKey == "" {
			*accessKey = "minioadmin"
		}
		if *secretKey == "" {
			*secretKey = "minioadmin"
		}
	}

	if *command == "help" || *command == "" {
		printHelp()
		return
	}

	if *accessKey == "" {
		*accessKey = os.Getenv("AWS_ACCESS_KEY_ID")
	}
	if *secretKey == "" {
		*secretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}

	backend, err := buildBackend(*backendType, fsstorage.Config{
		BaseDir: *baseDir,
	}, s3storage.Config{
		Region:                 *region,
		Bucket:                 *bucket,
		AccessKeyID:            *accessKey,
		SecretAccessKey:        *secretKey,
		Endpoint:               *endpoint,
		UsePathStyle:           *usePathStyle,
		EnableSSE:              *enableSSE,
		SSEAlgorithm:           *sseAlgorithm,
		SSEKMSKeyID:            *sseKMSKeyID,
		CreateBucketIfNotExist: *createBucket,
	})
	if err != nil {
		log.Fatalf("Failed to initialize %s backend: %v", *backendType, err)
	}

	ctx := context.Background()

	switch strings.ToLower(*command) {
	case "roundtrip":
		runRoundtrip(ctx, backend)

	case "upload":
		if *objectKey == "" || *filePath == "" {
			log.Fatal("Object key and file path are required for upload")
		}
		file, err := os.Open(*filePath)
		if err != nil {
			log.Fatalf("Failed to open file: %v", err)
		}
		defer file.Close()

		fmt.Printf("Uploading %s to %s...\n", *filePath, *objectKey)
		start := time.Now()
		if err := backend.Upload(ctx, *objectKey, file); err != nil {
			log.Fatalf("Upload failed: %v", err)
		}
		fmt.Printf("Upload successful (took %v)\n", time.Since(start))

	case "download":
		if *objectKey == "" || *filePath == "" {
			log.Fatal("Object key and file path are required for download")
		}
		fmt.Printf("Downloading %s to %s...\n", *objectKey, *filePath)
		start := time.Now()
		reader, err := backend.Download(ctx, *objectKey)
		if err != nil {
			log.Fatalf("Download failed: %v", err)
		}
		defer reader.Close()

		file, err := os.Create(*filePath)
		if err != nil {
			log.Fatalf("Failed to create file: %v", err)
		}
		defer file.Close()

		written, err := io.Copy(file, reader)
		if err != nil {
			log.Fatalf("Failed to write file: %v", err)
		}
		fmt.Printf("Download successful: %d bytes (took %v)\n", written, time.Since(start))

	case "delete":
		if *objectKey == "" {
			log.Fatal("Object key is required for delete")
		}
		fmt.Printf("Deleting %s...\n", *objectKey)
		if err := backend.Delete(ctx, *objectKey); err != nil {
			log.Fatalf("Delete failed: %v", err)
		}
		fmt.Println("Delete successful")

	case "stat":
		if *objectKey == "" {
			log.Fatal("Object key is required for stat")
		}
		meta, err := backend.GetObjectMeta(ctx, *objectKey)
		if err != nil {
			log.Fatalf("Stat failed: %v", err)
		}
		fmt.Printf("Key:          %s\n", meta.Key)
		fmt.Printf("Size:         %d bytes\n", meta.Size)
		fmt.Printf("Content-Type: %s\n", meta.ContentType)
		fmt.Printf("Updated:      %s\n", meta.UpdatedAt.Format(time.RFC3339))

	default:
		log.Fatalf("Unknown command: %s", *command)
	}
}

func buildBackend(backendType string, fsCfg fsstorage.Config, s3Cfg s3storage.Config) (fileintake.BlobStore, error) {
	switch backendType {
	case "fs":
		return fsstorage.New(fsCfg)
	case "s3":
		if s3Cfg.Bucket == "" {
			return nil, fmt.Errorf("bucket name is required")
		}
		return s3storage.New(s3Cfg)
	default:
		return nil, fmt.Errorf("unknown backend type: %s", backendType)
	}
}

// runRoundtrip writes a probe object, reads it back, checks metadata, and
// deletes it again, failing loudly on any mismatch.
func runRoundtrip(ctx context.Context, backend fileintake.BlobStore) {
	key := fmt.Sprintf("storagecheck/probe-%d.txt", time.Now().UnixNano())
	payload := fmt.Sprintf("storagecheck probe written at %s", time.Now().Format(time.RFC3339))

	fmt.Printf("1/4 upload %s\n", key)
	err := backend.UploadWithParams(ctx, strings.NewReader(payload), fileintake.UploadParams{
		ObjectKey: key,
		MimeType:  "text/plain",
	})
	if err != nil {
		log.Fatalf("Upload failed: %v", err)
	}

	fmt.Println("2/4 stat")
	meta, err := backend.GetObjectMeta(ctx, key)
	if err != nil {
		log.Fatalf("Stat failed: %v", err)
	}
	if meta.Size != int64(len(payload)) {
		log.Fatalf("Size mismatch: stored %d, expected %d", meta.Size, len(payload))
	}

	fmt.Println("3/4 download")
	reader, err := backend.Download(ctx, key)
	if err != nil {
		log.Fatalf("Download failed: %v", err)
	}
	data, err := io.ReadAll(reader)
	reader.Close()
	if err != nil {
		log.Fatalf("Read failed: %v", err)
	}
	if string(data) != payload {
		log.Fatal("Downloaded bytes do not match uploaded bytes")
	}

	fmt.Println("4/4 delete")
	if err := backend.Delete(ctx, key); err != nil {
		log.Fatalf("Delete failed: %v", err)
	}
	if _, err := backend.Download(ctx, key); err == nil {
		log.Fatal("Object still readable after delete")
	}

	fmt.Println("Roundtrip OK")
}

func printHelp() {
	fmt.Println("Storage Backend Check")
	fmt.Println("\nCommands:")
	fmt.Println("  roundtrip  Upload, stat, download and delete a probe object")
	fmt.Println("  upload     Upload a file")
	fmt.Println("  download   Download an object to a file")
	fmt.Println("  delete     Delete an object")
	fmt.Println("  stat       Show object metadata")
	fmt.Println("  help       Show this help message")
	fmt.Println("\nFlags:")
	flag.PrintDefaults()
	fmt.Println("\nExamples:")
	fmt.Println("  Roundtrip against a local directory:")
	fmt.Println("    storagecheck -backend fs -base-dir ./data/files -command roundtrip")
	fmt.Println("\n  Roundtrip against MinIO:")
	fmt.Println("    storagecheck -use-minio -bucket my-bucket -command roundtrip")
	fmt.Println("\n  Upload a file to AWS S3:")
	fmt.Println("    storagecheck -backend s3 -bucket my-bucket -command upload -key test/file.txt -file ./local-file.txt")
}
