// internal/config/config.go
package config

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config
//
// 로더/검증 러너 실행 시 필요한 모든 환경 변수 값을 보관하는 구조체.
// 모든 값은 프로세스 시작 시점에 Load() 에 의해 초기화되며,
// 이후에는 변경되지 않는 불변(read-only) 설정들이다.
type Config struct {

	// ---------------------------
	// 서비스 식별 / 로깅
	// ---------------------------

	ServiceName string // 로그 공통 필드 service
	InstanceID  string // 프로세스 고유 ID (호스트명 기반, 실패 시 랜덤 hex)
	LogLevel    string // debug / info / warn / error
	LogPretty   bool   // true 이면 ConsoleWriter, false 이면 JSON

	// ---------------------------
	// Splunk 접속 정보
	// ---------------------------

	SplunkMgmtURL  string // 관리 REST API (예: https://localhost:8089)
	SplunkHECURL   string // HEC 엔드포인트 base (예: https://localhost:8088)
	SplunkUser     string
	SplunkPassword string
	TokenName      string // HEC input 이름 (예: course_hec)

	// ---------------------------
	// Docker 컨테이너
	// ---------------------------

	Container      string // 컨테이너 이름 (예: splunk-course)
	Image          string // 컨테이너 이미지 (예: splunk/splunk:latest)
	LookupDestPath string // lookup 파일이 복사될 컨테이너 내부 디렉토리

	// ---------------------------
	// 배치 전송 파라미터
	// ---------------------------

	BatchSize  int           // 배치 크기 (N개 모이면 HEC로 전송)
	HECTimeout time.Duration // 배치 1회 전송 timeout
	HECGzip    bool          // 배치 body gzip 압축 여부
	HostTag    string        // 모든 이벤트에 붙는 host 필드

	// ---------------------------
	// 준비 대기 / settle 지연
	// ---------------------------

	HealthTimeout  time.Duration // server/info 폴링 전체 제한 시간
	HealthInterval time.Duration // 폴링 간격
	MgmtTimeout    time.Duration // 관리 API 호출 1회 timeout
	MgmtRetries    int           // 관리 API 연결 실패 재시도 횟수
	IndexSettle    time.Duration // 인덱스 생성 후 대기
	PreLoadWait    time.Duration // LOAD 단계 시작 전 대기
	IndexWait      time.Duration // LOAD 완료 후 검색 가능해질 때까지 대기
	RetryDelay     time.Duration // 실패한 attempt 이후 재시도 전 대기
	CleanupSettle  time.Duration // 컨테이너 제거 후 대기

	// ---------------------------
	// 데이터 / 외부 명령
	// ---------------------------

	ManifestFile  string   // 선택: YAML manifest 경로 (비어있으면 기본 manifest)
	DataDir       string   // 생성된 로그 파일 디렉토리
	LookupFile    string   // DataDir 기준 lookup 파일 이름
	GenerateCmd   []string // 데이터 생성 명령
	GenerateDir   string   // 데이터 생성 명령 작업 디렉토리
	VerifyCmd     []string // 테스트 스위트 실행 명령
	VerifyDir     string   // 테스트 스위트 작업 디렉토리
	VerifyReports string   // 테스트 스위트 리포트(test_results_*.json) 디렉토리
	MaxAttempts   int      // 전체 파이프라인 최대 시도 횟수
	ReportDir     string   // validation_report_*.json 저장 디렉토리

	// ---------------------------
	// 로컬 dead-letter 스풀
	// ---------------------------

	DeadLetterDir      string        // 전송 실패 배치 저장 디렉토리
	DeadLetterMaxAge   time.Duration // 파일 TTL (초과 시 삭제)
	DeadLetterMaxBytes int64         // 스풀 전체 허용 용량 (바이트)

	// ---------------------------
	// S3 리포트 보관 (선택)
	// ---------------------------

	AWSRegion    string
	ReportBucket string // 비어있으면 S3 업로드 안 함
	ReportPrefix string
	S3Timeout    time.Duration
	S3AppRetries int
}

// Load
//
// 환경 변수 기반으로 Config 값을 초기화한다.
// 값이 비어있으면 기본값을 사용하고, 형식이 잘못된 값은 즉시 종료(fail-fast).
func Load() Config {
	return Config{
		ServiceName: env("SERVICE_NAME", "course-ingest"),
		InstanceID:  fallbackInstanceID(),
		LogLevel:    env("LOG_LEVEL", "info"),
		LogPretty:   envBool("LOG_PRETTY", true),

		SplunkMgmtURL:  strings.TrimRight(env("SPLUNK_MGMT_URL", "https://localhost:8089"), "/"),
		SplunkHECURL:   strings.TrimRight(env("SPLUNK_HEC_URL", "https://localhost:8088"), "/"),
		SplunkUser:     env("SPLUNK_USERNAME", "admin"),
		SplunkPassword: env("SPLUNK_PASSWORD", "password"),
		TokenName:      env("HEC_TOKEN_NAME", "course_hec"),

		Container:      env("SPLUNK_CONTAINER", "splunk-course"),
		Image:          env("SPLUNK_IMAGE", "splunk/splunk:latest"),
		LookupDestPath: env("LOOKUP_DEST_PATH", "/opt/splunk/etc/apps/search/lookups"),

		BatchSize:  envInt("BATCH_SIZE", 1000),
		HECTimeout: envDur("HEC_TIMEOUT", 60*time.Second),
		HECGzip:    envBool("HEC_GZIP", false),
		HostTag:    env("HOST_TAG", "course-data"),

		HealthTimeout:  envDur("HEALTH_TIMEOUT", 180*time.Second),
		HealthInterval: envDur("HEALTH_INTERVAL", 2*time.Second),
		MgmtTimeout:    envDur("MGMT_TIMEOUT", 30*time.Second),
		MgmtRetries:    envInt("MGMT_RETRIES", 2),
		IndexSettle:    envDur("INDEX_SETTLE", 5*time.Second),
		PreLoadWait:    envDur("PRELOAD_WAIT", 10*time.Second),
		IndexWait:      envDur("INDEX_WAIT", 30*time.Second),
		RetryDelay:     envDur("RETRY_DELAY", 10*time.Second),
		CleanupSettle:  envDur("CLEANUP_SETTLE", 2*time.Second),

		ManifestFile:  env("MANIFEST_FILE", ""),
		DataDir:       env("DATA_DIR", "data"),
		LookupFile:    env("LOOKUP_FILE", "users.csv"),
		GenerateCmd:   envFields("GENERATE_CMD", "python3 generate_sample_data.py"),
		GenerateDir:   env("GENERATE_DIR", "scripts"),
		VerifyCmd:     envFields("VERIFY_CMD", "python3 course_tests/run_all_tests.py --skip-validation"),
		VerifyDir:     env("VERIFY_DIR", "."),
		VerifyReports: env("VERIFY_REPORTS", "course_tests/reports"),
		MaxAttempts:   envInt("MAX_ATTEMPTS", 3),
		ReportDir:     env("REPORT_DIR", "."),

		DeadLetterDir:      env("DEAD_LETTER_DIR", "deadletter"),
		DeadLetterMaxAge:   envDur("DEAD_LETTER_MAX_AGE", 72*time.Hour),
		DeadLetterMaxBytes: envInt64("DEAD_LETTER_MAX_BYTES", 256*1024*1024),

		AWSRegion:    env("AWS_REGION", "ap-northeast-2"),
		ReportBucket: env("REPORT_BUCKET", ""),
		ReportPrefix: env("REPORT_PREFIX", "validation"),
		S3Timeout:    envDur("S3_TIMEOUT", 5*time.Second),
		S3AppRetries: envInt("S3_APP_RETRIES", 3),
	}
}

// env / envInt / envInt64 / envDur / envBool / envFields
//
// 공통 패턴.
// 값이 없으면 기본값, 형식이 잘못되면 즉시 로그 출력 후 종료(fail-fast).
// 런타임 중 설정 오류를 겪지 않도록 하기 위한 보호 전략.
func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("invalid int env %s=%q: %v", key, v, err)
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Fatalf("invalid int64 env %s=%q: %v", key, v, err)
	}
	return n
}

func envDur(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatalf("invalid duration env %s=%q: %v", key, v, err)
	}
	return d
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Fatalf("invalid bool env %s=%q: %v", key, v, err)
	}
	return b
}

// 공백 기준으로 명령어와 인자를 나눈다. 따옴표 처리는 하지 않는다.
func envFields(key, def string) []string {
	return strings.Fields(env(key, def))
}

// fallbackInstanceID
//
// 이 프로세스를 식별하는 고유 값.
//   - 기본: hostname
//   - fallback: 12자리 랜덤 hex
func fallbackInstanceID() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	var b [6]byte
	if _, err := rand.Read(b[:]); err == nil {
		return hex.EncodeToString(b[:])
	}
	return strconv.FormatInt(time.Now().UnixNano(), 10)
}
